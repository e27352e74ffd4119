package review

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/repository"
)

func seedRecord(t *testing.T, store *repository.MemoryStore, status entity.InvoiceStatus) *entity.InvoiceRecord {
	t.Helper()
	rec := &entity.InvoiceRecord{
		ID:            uuid.New(),
		InvoiceNumber: "INV-200",
		VendorName:    "Acme Crp",
		InvoiceDate:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount:   decimal.RequireFromString("310.00"),
		Confidence:    0.72,
		Status:        status,
	}
	require.NoError(t, store.Persist(context.Background(), rec))
	return rec
}

func TestApplyCorrection_PromotesToValid(t *testing.T) {
	store := repository.NewMemoryStore()
	seedRecord(t, store, entity.StatusNeedsReview)
	svc := NewService(store, store, nil)

	rec, err := svc.ApplyCorrection(context.Background(), "INV-200", Correction{
		VendorName:  "Acme Corp",
		TotalAmount: "315.50",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusValid, rec.Status)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, "Acme Corp", rec.VendorName)
	assert.Equal(t, "315.50", rec.TotalAmount.StringFixed(2))

	stored, err := store.GetByNumber(context.Background(), "INV-200")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusValid, stored.Status)
}

func TestApplyCorrection_UntouchedFieldsSurvive(t *testing.T) {
	store := repository.NewMemoryStore()
	orig := seedRecord(t, store, entity.StatusNeedsReview)
	svc := NewService(store, store, nil)

	rec, err := svc.ApplyCorrection(context.Background(), "INV-200", Correction{VendorName: "Acme Corp"})
	require.NoError(t, err)
	assert.True(t, orig.TotalAmount.Equal(rec.TotalAmount))
	assert.Equal(t, orig.InvoiceDate, rec.InvoiceDate)
}

func TestApplyCorrection_RejectsAlreadyValid(t *testing.T) {
	store := repository.NewMemoryStore()
	seedRecord(t, store, entity.StatusValid)
	svc := NewService(store, store, nil)

	_, err := svc.ApplyCorrection(context.Background(), "INV-200", Correction{VendorName: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already valid")
}

func TestApplyCorrection_RejectsFailedRecord(t *testing.T) {
	store := repository.NewMemoryStore()
	seedRecord(t, store, entity.StatusFailed)
	svc := NewService(store, store, nil)

	_, err := svc.ApplyCorrection(context.Background(), "INV-200", Correction{VendorName: "X"})
	require.Error(t, err)
}

func TestApplyCorrection_RejectsBadValues(t *testing.T) {
	store := repository.NewMemoryStore()
	seedRecord(t, store, entity.StatusNeedsReview)
	svc := NewService(store, store, nil)

	_, err := svc.ApplyCorrection(context.Background(), "INV-200", Correction{InvoiceDate: "Feb 1"})
	assert.Error(t, err)

	_, err = svc.ApplyCorrection(context.Background(), "INV-200", Correction{TotalAmount: "-3.00"})
	assert.Error(t, err)
}

func TestAnomalyReviewWorkflow(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewService(store, store, nil)
	ctx := context.Background()

	a := entity.NewAnomaly(entity.AnomalyLowConfidence, "inv.pdf", "unusual total")
	require.NoError(t, store.Append(ctx, a))

	pending, err := svc.PendingAnomalies(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, svc.MarkAnomalyReviewed(ctx, a.ID))

	pending, err = svc.PendingAnomalies(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// never deleted, only transitioned
	all := store.Anomalies()
	require.Len(t, all, 1)
	assert.Equal(t, entity.ReviewDone, all[0].ReviewStatus)
}
