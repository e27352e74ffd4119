package entity

// BatchJob is the ephemeral aggregate for one batch run. It is owned by
// a single BatchRunner invocation and updated under its lock; snapshots
// of it travel in progress events.
type BatchJob struct {
	Total       int    `json:"total"`
	Current     int    `json:"current"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	CurrentFile string `json:"current_file,omitempty"`
}
