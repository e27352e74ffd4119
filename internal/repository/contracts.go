package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/okellar/invoiceflow/internal/entity"
)

// InvoiceStore is the durable persistence collaborator for invoice records.
// InsertIfAbsent must be atomic: two concurrent workers reserving the same
// invoice number must not both succeed.
type InvoiceStore interface {
	// InsertIfAbsent reserves an invoice number. It returns false when the
	// number already belongs to a non-failed record.
	InsertIfAbsent(ctx context.Context, invoiceNumber string) (bool, error)
	// ReleaseReservation frees a reserved invoice number that never reached
	// a non-failed record, so a later resubmission is not reported as a
	// duplicate. Releasing an unreserved number is a no-op.
	ReleaseReservation(ctx context.Context, invoiceNumber string) error
	// Persist writes a record at a terminal state. It is never called
	// mid-stage.
	Persist(ctx context.Context, rec *entity.InvoiceRecord) error
	// ExistsActive reports whether a non-failed record already carries the
	// invoice number. This is the duplicate-detection gate's read side.
	ExistsActive(ctx context.Context, invoiceNumber string) (bool, error)
	GetByNumber(ctx context.Context, invoiceNumber string) (*entity.InvoiceRecord, error)
	// VendorHistory returns summary statistics over a vendor's previously
	// persisted totals, for the outlier check.
	VendorHistory(ctx context.Context, vendorName string) (entity.VendorStats, error)
	// UpdateRecord overwrites mutable fields of an existing record. Used by
	// the human-correction workflow.
	UpdateRecord(ctx context.Context, rec *entity.InvoiceRecord) error
}

// AnomalyStore is append-only evidence storage. Anomalies are never
// deleted; only their review status changes.
type AnomalyStore interface {
	Append(ctx context.Context, a entity.Anomaly) error
	ListNeedsReview(ctx context.Context) ([]entity.Anomaly, error)
	MarkReviewed(ctx context.Context, id uuid.UUID) error
}

// Store bundles both collaborators for wiring convenience.
type Store interface {
	InvoiceStore
	AnomalyStore
}
