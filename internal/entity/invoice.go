package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an InvoiceRecord. A record is
// created pending and transitions exactly once to a terminal state per
// processing attempt; re-review moves needs_review to valid.
type InvoiceStatus string

const (
	StatusPending     InvoiceStatus = "pending"
	StatusValid       InvoiceStatus = "valid"
	StatusNeedsReview InvoiceStatus = "needs_review"
	StatusFailed      InvoiceStatus = "failed"
)

// InvoiceRecord is the structured result of processing one document.
// InvoiceNumber is the business key: unique among non-failed records.
type InvoiceRecord struct {
	ID                uuid.UUID        `json:"id"`
	InvoiceNumber     string           `json:"invoice_number"`
	VendorName        string           `json:"vendor_name"`
	InvoiceDate       time.Time        `json:"invoice_date"`
	TotalAmount       decimal.Decimal  `json:"total_amount"`
	Currency          string           `json:"currency,omitempty"`
	PONumber          string           `json:"po_number,omitempty"`
	TaxAmount         *decimal.Decimal `json:"tax_amount,omitempty"`
	Confidence        float64          `json:"confidence"`
	Status            InvoiceStatus    `json:"status"`
	SourceDocumentRef string           `json:"source_document_ref,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Terminal reports whether the record has reached a terminal state.
func (r *InvoiceRecord) Terminal() bool {
	return r.Status != StatusPending
}

// ValidationStatus is the outcome of the validation stage.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

// ValidationResult is produced once per extraction attempt and is immutable
// after creation. Errors maps field name to the reason it was rejected.
type ValidationResult struct {
	Status ValidationStatus  `json:"status"`
	Errors map[string]string `json:"errors,omitempty"`
}

func (v ValidationResult) Valid() bool { return v.Status == ValidationValid }

// MatchStatus is the outcome of PO matching. Unmatched is a normal terminal
// value, not an error.
type MatchStatus string

const (
	MatchMatched   MatchStatus = "matched"
	MatchUnmatched MatchStatus = "unmatched"
)

// MatchingResult carries the resolved PO reference when MatchConfidence
// cleared the configured acceptance threshold.
type MatchingResult struct {
	Status          MatchStatus `json:"status"`
	PONumber        string      `json:"po_number,omitempty"`
	MatchConfidence float64     `json:"match_confidence"`
}

// VendorStats summarizes a vendor's historical totals for the outlier check.
type VendorStats struct {
	Count  int
	Mean   float64
	StdDev float64
}

// StageTimings records wall-clock duration per pipeline stage.
type StageTimings struct {
	Extraction time.Duration `json:"extraction"`
	Validation time.Duration `json:"validation"`
	Matching   time.Duration `json:"matching"`
	Review     time.Duration `json:"review"`
	Total      time.Duration `json:"total"`
}

// InvoiceOutcome is the single result of one orchestrator run.
type InvoiceOutcome struct {
	Record     *InvoiceRecord  `json:"record"`
	Validation ValidationResult `json:"validation_result"`
	Matching   MatchingResult  `json:"matching_result"`
	Anomalies  []Anomaly       `json:"anomalies,omitempty"`
	// Duplicate marks the distinct "already processed" outcome: the
	// invoice number belongs to an existing non-failed record.
	Duplicate bool         `json:"duplicate,omitempty"`
	Timings   StageTimings `json:"timings"`
}
