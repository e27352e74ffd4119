package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/entity"
)

func record(number, vendor, amount string, status entity.InvoiceStatus) *entity.InvoiceRecord {
	return &entity.InvoiceRecord{
		ID:            uuid.New(),
		InvoiceNumber: number,
		VendorName:    vendor,
		InvoiceDate:   time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		TotalAmount:   decimal.RequireFromString(amount),
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMemoryStore_InsertIfAbsentIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.InsertIfAbsent(ctx, "INV-RACE")
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one reservation wins")
}

func TestMemoryStore_ReservationConsumedByPersist(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.InsertIfAbsent(ctx, "INV-1")
	require.NoError(t, err)
	require.True(t, ok)

	exists, err := store.ExistsActive(ctx, "INV-1")
	require.NoError(t, err)
	assert.True(t, exists, "a reservation counts as active")

	require.NoError(t, store.Persist(ctx, record("INV-1", "Acme", "10.00", entity.StatusValid)))

	exists, err = store.ExistsActive(ctx, "INV-1")
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err = store.InsertIfAbsent(ctx, "INV-1")
	require.NoError(t, err)
	assert.False(t, ok, "the persisted record still blocks the number")
}

func TestMemoryStore_FailedRecordsFreeTheNumber(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, record("INV-2", "Acme", "10.00", entity.StatusFailed)))

	exists, err := store.ExistsActive(ctx, "INV-2")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err := store.InsertIfAbsent(ctx, "INV-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_ReleaseReservation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.InsertIfAbsent(ctx, "INV-3")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.ReleaseReservation(ctx, "INV-3"))

	exists, err := store.ExistsActive(ctx, "INV-3")
	require.NoError(t, err)
	assert.False(t, exists, "a released number is free again")

	ok, err = store.InsertIfAbsent(ctx, "INV-3")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, store.ReleaseReservation(ctx, "INV-NEVER"), "releasing an unreserved number is a no-op")
}

func TestMemoryStore_GetByNumber(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetByNumber(ctx, "INV-404")
	assert.ErrorIs(t, err, common.ErrNotFound)

	rec := record("INV-3", "Acme", "42.00", entity.StatusNeedsReview)
	require.NoError(t, store.Persist(ctx, rec))

	got, err := store.GetByNumber(ctx, "INV-3")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	// the returned record is a copy, not shared state
	got.VendorName = "mutated"
	again, err := store.GetByNumber(ctx, "INV-3")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.VendorName)
}

func TestMemoryStore_VendorHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stats, err := store.VendorHistory(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)

	for i, amt := range []string{"90.00", "100.00", "110.00"} {
		require.NoError(t, store.Persist(ctx, record(fmt.Sprintf("H-%d", i), "Acme", amt, entity.StatusValid)))
	}
	// failed records are excluded from the history
	require.NoError(t, store.Persist(ctx, record("H-X", "Acme", "100000.00", entity.StatusFailed)))

	stats, err = store.VendorHistory(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 100.0, stats.Mean, 1e-9)
	assert.InDelta(t, 8.1649658, stats.StdDev, 1e-6)
}

func TestMemoryStore_UpdateRecord(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := record("INV-5", "Acme", "10.00", entity.StatusNeedsReview)
	assert.ErrorIs(t, store.UpdateRecord(ctx, rec), common.ErrNotFound)

	require.NoError(t, store.Persist(ctx, rec))
	rec.Status = entity.StatusValid
	rec.Confidence = 1.0
	require.NoError(t, store.UpdateRecord(ctx, rec))

	got, err := store.GetByNumber(ctx, "INV-5")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusValid, got.Status)
	assert.Equal(t, 1.0, got.Confidence)
}
