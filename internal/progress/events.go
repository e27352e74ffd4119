package progress

import (
	"time"

	"github.com/okellar/invoiceflow/internal/entity"
)

// EventType classifies a progress notification.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventWarning   EventType = "warning"
	EventError     EventType = "error"
	EventComplete  EventType = "complete"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one push notification to progress subscribers. Delivery is
// at-least-once and in completion order, not submission order; consumers
// reconcile by the monotonic Current counter.
type Event struct {
	Type        EventType `json:"type"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	CurrentFile string    `json:"current_file,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FromJob snapshots a batch aggregate into an event.
func FromJob(typ EventType, job entity.BatchJob, message string) Event {
	return Event{
		Type:        typ,
		Current:     job.Current,
		Total:       job.Total,
		Failed:      job.Failed,
		Skipped:     job.Skipped,
		CurrentFile: job.CurrentFile,
		Message:     message,
		Timestamp:   time.Now().UTC(),
	}
}
