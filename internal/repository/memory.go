package repository

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/entity"
)

// MemoryStore is an in-memory Store used by tests and --inmem runs. Writes
// are serialized under one lock, which gives InsertIfAbsent its
// compare-and-insert atomicity.
type MemoryStore struct {
	mu        sync.Mutex
	reserved  map[string]struct{}
	records   map[uuid.UUID]*entity.InvoiceRecord
	byNumber  map[string]uuid.UUID
	anomalies []entity.Anomaly
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reserved: make(map[string]struct{}),
		records:  make(map[uuid.UUID]*entity.InvoiceRecord),
		byNumber: make(map[string]uuid.UUID),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) InsertIfAbsent(_ context.Context, invoiceNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reserved[invoiceNumber]; ok {
		return false, nil
	}
	if s.activeLocked(invoiceNumber) {
		return false, nil
	}
	s.reserved[invoiceNumber] = struct{}{}
	return true, nil
}

func (s *MemoryStore) ReleaseReservation(_ context.Context, invoiceNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, invoiceNumber)
	return nil
}

func (s *MemoryStore) Persist(_ context.Context, rec *entity.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[cp.ID] = &cp
	if cp.InvoiceNumber != "" {
		s.byNumber[cp.InvoiceNumber] = cp.ID
		// reservation is consumed once the record lands
		delete(s.reserved, cp.InvoiceNumber)
	}
	return nil
}

func (s *MemoryStore) ExistsActive(_ context.Context, invoiceNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reserved[invoiceNumber]; ok {
		return true, nil
	}
	return s.activeLocked(invoiceNumber), nil
}

func (s *MemoryStore) activeLocked(invoiceNumber string) bool {
	id, ok := s.byNumber[invoiceNumber]
	if !ok {
		return false
	}
	rec := s.records[id]
	return rec != nil && rec.Status != entity.StatusFailed
}

func (s *MemoryStore) GetByNumber(_ context.Context, invoiceNumber string) (*entity.InvoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byNumber[invoiceNumber]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s.records[id]
	return &cp, nil
}

func (s *MemoryStore) VendorHistory(_ context.Context, vendorName string) (entity.VendorStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totals []float64
	for _, rec := range s.records {
		if rec.VendorName == vendorName && rec.Status != entity.StatusFailed {
			f, _ := rec.TotalAmount.Float64()
			totals = append(totals, f)
		}
	}
	return statsOf(totals), nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, rec *entity.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return common.ErrNotFound
	}
	cp := *rec
	s.records[cp.ID] = &cp
	if cp.InvoiceNumber != "" {
		s.byNumber[cp.InvoiceNumber] = cp.ID
	}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, a entity.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies = append(s.anomalies, a)
	return nil
}

func (s *MemoryStore) ListNeedsReview(_ context.Context) ([]entity.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Anomaly
	for _, a := range s.anomalies {
		if a.ReviewStatus == entity.ReviewNeeded {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkReviewed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.anomalies {
		if s.anomalies[i].ID == id {
			s.anomalies[i].ReviewStatus = entity.ReviewDone
			return nil
		}
	}
	return common.ErrNotFound
}

// Anomalies returns a copy of everything appended so far.
func (s *MemoryStore) Anomalies() []entity.Anomaly {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Anomaly, len(s.anomalies))
	copy(out, s.anomalies)
	return out
}

func statsOf(totals []float64) entity.VendorStats {
	n := len(totals)
	if n == 0 {
		return entity.VendorStats{}
	}
	var sum float64
	for _, t := range totals {
		sum += t
	}
	mean := sum / float64(n)
	var variance float64
	for _, t := range totals {
		variance += (t - mean) * (t - mean)
	}
	variance /= float64(n)
	return entity.VendorStats{Count: n, Mean: mean, StdDev: math.Sqrt(variance)}
}
