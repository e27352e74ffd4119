package entity

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyType classifies a recorded processing deviation.
type AnomalyType string

const (
	AnomalyInvalidPDF      AnomalyType = "invalid_pdf"
	AnomalyExtractionError AnomalyType = "extraction_error"
	AnomalyMissingData     AnomalyType = "missing_data"
	AnomalyLowConfidence   AnomalyType = "low_confidence"
	AnomalyProcessingError AnomalyType = "processing_error"
	AnomalySystemError     AnomalyType = "system_error"
)

// ReviewStatus tracks the human-review workflow on an anomaly.
type ReviewStatus string

const (
	ReviewNeeded ReviewStatus = "needs_review"
	ReviewDone   ReviewStatus = "reviewed"
)

// Anomaly is append-only evidence attached to a record's processing history.
// Only ReviewStatus is ever mutated, by the human-review workflow.
type Anomaly struct {
	ID            uuid.UUID    `json:"id"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	FileName      string       `json:"file_name"`
	Reason        string       `json:"reason"`
	Type          AnomalyType  `json:"type"`
	Confidence    *float64     `json:"confidence,omitempty"`
	ReviewStatus  ReviewStatus `json:"review_status"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewAnomaly builds an anomaly pending human review.
func NewAnomaly(typ AnomalyType, fileName, reason string) Anomaly {
	return Anomaly{
		ID:           uuid.New(),
		FileName:     fileName,
		Reason:       reason,
		Type:         typ,
		ReviewStatus: ReviewNeeded,
		Timestamp:    time.Now().UTC(),
	}
}
