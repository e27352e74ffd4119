package validate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/llm"
	"github.com/okellar/invoiceflow/internal/repository"
)

func goodFields() llm.InvoiceFields {
	return llm.InvoiceFields{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-100",
		InvoiceDate:   "2026-06-01",
		TotalAmount:   "250.00",
		Currency:      "USD",
	}
}

func persistInvoice(t *testing.T, store *repository.MemoryStore, number, vendor, amount string, status entity.InvoiceStatus) {
	t.Helper()
	total, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	require.NoError(t, store.Persist(context.Background(), &entity.InvoiceRecord{
		ID:            uuid.New(),
		InvoiceNumber: number,
		VendorName:    vendor,
		InvoiceDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount:   total,
		Status:        status,
	}))
}

func TestStage_ValidFields(t *testing.T) {
	store := repository.NewMemoryStore()
	stage := NewStage(store, store, Config{}, nil)

	res, err := stage.Run(context.Background(), goodFields(), 0.92, "inv.pdf")
	require.NoError(t, err)
	assert.True(t, res.Validation.Valid())
	assert.False(t, res.Duplicate)
	assert.Empty(t, res.Anomalies)
}

func TestStage_MissingRequiredFields(t *testing.T) {
	store := repository.NewMemoryStore()
	stage := NewStage(store, store, Config{}, nil)

	res, err := stage.Run(context.Background(), llm.InvoiceFields{}, 0.5, "inv.pdf")
	require.NoError(t, err)
	assert.False(t, res.Validation.Valid())
	assert.Contains(t, res.Validation.Errors, "vendor_name")
	assert.Contains(t, res.Validation.Errors, "invoice_number")
	assert.Contains(t, res.Validation.Errors, "invoice_date")
	assert.Contains(t, res.Validation.Errors, "total_amount")
}

func TestStage_RejectsBadValues(t *testing.T) {
	store := repository.NewMemoryStore()
	stage := NewStage(store, store, Config{}, nil)

	f := goodFields()
	f.InvoiceDate = "06/01/2026"
	f.TotalAmount = "-10.00"
	res, err := stage.Run(context.Background(), f, 0.9, "inv.pdf")
	require.NoError(t, err)
	assert.False(t, res.Validation.Valid())
	assert.Contains(t, res.Validation.Errors["invoice_date"], "YYYY-MM-DD")
	assert.Contains(t, res.Validation.Errors["total_amount"], "negative")
}

func TestStage_DuplicateInvoiceNumber(t *testing.T) {
	store := repository.NewMemoryStore()
	persistInvoice(t, store, "INV-100", "Acme Corp", "100.00", entity.StatusValid)
	stage := NewStage(store, store, Config{}, nil)

	res, err := stage.Run(context.Background(), goodFields(), 0.92, "inv.pdf")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, entity.AnomalyMissingData, res.Anomalies[0].Type)
	assert.Len(t, store.Anomalies(), 1)
}

func TestStage_FailedRecordDoesNotBlockReuse(t *testing.T) {
	store := repository.NewMemoryStore()
	persistInvoice(t, store, "INV-100", "Acme Corp", "100.00", entity.StatusFailed)
	stage := NewStage(store, store, Config{}, nil)

	res, err := stage.Run(context.Background(), goodFields(), 0.92, "inv.pdf")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestStage_OutlierSkippedBelowMinSamples(t *testing.T) {
	store := repository.NewMemoryStore()
	for i := 0; i < 4; i++ {
		persistInvoice(t, store, fmt.Sprintf("H-%d", i), "Acme Corp", "100.00", entity.StatusValid)
	}
	stage := NewStage(store, store, Config{OutlierStdDevs: 2.0, MinVendorSamples: 5}, nil)

	f := goodFields()
	f.TotalAmount = "99999.00"
	res, err := stage.Run(context.Background(), f, 0.92, "inv.pdf")
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies, "outlier check needs enough history")
}

func TestStage_OutlierFlagged(t *testing.T) {
	store := repository.NewMemoryStore()
	amounts := []string{"95.00", "100.00", "105.00", "98.00", "102.00"}
	for i, amt := range amounts {
		persistInvoice(t, store, fmt.Sprintf("H-%d", i), "Acme Corp", amt, entity.StatusValid)
	}
	stage := NewStage(store, store, Config{OutlierStdDevs: 2.0, MinVendorSamples: 5}, nil)

	f := goodFields()
	f.TotalAmount = "5000.00"
	res, err := stage.Run(context.Background(), f, 0.92, "inv.pdf")
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, entity.AnomalyLowConfidence, res.Anomalies[0].Type)
	assert.True(t, res.Validation.Valid(), "an outlier is reviewable, not invalid")

	f.TotalAmount = "101.00"
	res, err = stage.Run(context.Background(), f, 0.92, "inv-2.pdf")
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies, "amount inside the band is not flagged")
}
