package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/repository"
)

// Correction is the human-review input: corrected field values. Applying a
// correction implicitly sets confidence to 1.0 and status to valid.
type Correction struct {
	VendorName  string `json:"vendor_name"`
	InvoiceDate string `json:"invoice_date"`
	TotalAmount string `json:"total_amount"`
	Currency    string `json:"currency,omitempty"`
	PONumber    string `json:"po_number,omitempty"`
}

// Service applies human corrections and drives the anomaly review workflow.
type Service struct {
	invoices  repository.InvoiceStore
	anomalies repository.AnomalyStore
	logger    *slog.Logger
}

func NewService(invoices repository.InvoiceStore, anomalies repository.AnomalyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, anomalies: anomalies, logger: logger}
}

// ApplyCorrection transitions a needs_review record to valid with the
// corrected fields and full confidence. A valid record is never regressed;
// correcting it again is rejected.
func (s *Service) ApplyCorrection(ctx context.Context, invoiceNumber string, corr Correction) (*entity.InvoiceRecord, error) {
	rec, err := s.invoices.GetByNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", invoiceNumber, err)
	}
	if rec.Status == entity.StatusValid {
		return nil, common.NewAppError("ALREADY_VALID",
			fmt.Sprintf("invoice %s is already valid", invoiceNumber), common.ErrInvalidInput)
	}
	if rec.Status != entity.StatusNeedsReview {
		return nil, common.NewAppError("NOT_REVIEWABLE",
			fmt.Sprintf("invoice %s has status %s", invoiceNumber, rec.Status), common.ErrInvalidInput)
	}

	if corr.VendorName != "" {
		rec.VendorName = corr.VendorName
	}
	if corr.InvoiceDate != "" {
		d, err := time.Parse("2006-01-02", corr.InvoiceDate)
		if err != nil {
			return nil, common.NewAppError("BAD_CORRECTION", "invoice_date must be YYYY-MM-DD", err)
		}
		rec.InvoiceDate = d
	}
	if corr.TotalAmount != "" {
		amt, err := decimal.NewFromString(corr.TotalAmount)
		if err != nil || amt.IsNegative() {
			return nil, common.NewAppError("BAD_CORRECTION", "total_amount must be a non-negative decimal", err)
		}
		rec.TotalAmount = amt
	}
	if corr.Currency != "" {
		rec.Currency = corr.Currency
	}
	if corr.PONumber != "" {
		rec.PONumber = corr.PONumber
	}

	rec.Confidence = 1.0
	rec.Status = entity.StatusValid

	if err := s.invoices.UpdateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist correction for %s: %w", invoiceNumber, err)
	}
	s.logger.Info("review.correction_applied", "invoice_number", invoiceNumber)
	return rec, nil
}

// PendingAnomalies lists anomalies awaiting human review.
func (s *Service) PendingAnomalies(ctx context.Context) ([]entity.Anomaly, error) {
	return s.anomalies.ListNeedsReview(ctx)
}

// MarkAnomalyReviewed transitions one anomaly's review status. Anomalies
// are never deleted.
func (s *Service) MarkAnomalyReviewed(ctx context.Context, id uuid.UUID) error {
	if err := s.anomalies.MarkReviewed(ctx, id); err != nil {
		return fmt.Errorf("mark anomaly %s reviewed: %w", id, err)
	}
	s.logger.Info("review.anomaly_reviewed", "anomaly_id", id)
	return nil
}
