package memory

import (
	"context"
	"sync"
	"time"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/storage"
)

// SeriesStore is an in-memory implementation of storage.SeriesStore.
type SeriesStore struct {
	mu      sync.RWMutex
	records map[string]*domain.TokenRecord // keyed by mint
}

// NewSeriesStore creates a new in-memory series store.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{
		records: make(map[string]*domain.TokenRecord),
	}
}

// Get returns a copy of the record for mint.
func (s *SeriesStore) Get(_ context.Context, mint string) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Upsert replaces the cached series for mint and clears its verdict.
func (s *SeriesStore) Upsert(_ context.Context, mint string, series domain.Series, updatedAt time.Time) error {
	if err := storage.ValidateUpsert(mint, series); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[mint]
	if !ok {
		rec = &domain.TokenRecord{Mint: mint}
		s.records[mint] = rec
	}
	rec.Series = append(domain.Series(nil), series...)
	rec.LastUpdated = updatedAt.UTC()
	rec.Verdict = nil
	return nil
}

// SaveVerdict stores the latest verdict for mint.
func (s *SeriesStore) SaveVerdict(_ context.Context, mint string, verdict domain.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[mint]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Verdict = &verdict
	return nil
}

// IsStale reports whether the record is missing or older than maxAge.
func (s *SeriesStore) IsStale(_ context.Context, mint string, maxAge time.Duration, asOf time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[mint]
	if !ok {
		return true, nil
	}
	return storage.Stale(rec.LastUpdated, maxAge, asOf), nil
}

// List returns summaries of all records, most recently updated first.
func (s *SeriesStore) List(_ context.Context) ([]*domain.TokenSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenSummary, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, rec.Summary())
	}
	storage.SortSummaries(result)
	return result, nil
}

func copyRecord(rec *domain.TokenRecord) *domain.TokenRecord {
	out := &domain.TokenRecord{
		Mint:        rec.Mint,
		LastUpdated: rec.LastUpdated,
		Series:      append(domain.Series(nil), rec.Series...),
	}
	if rec.Verdict != nil {
		v := *rec.Verdict
		out.Verdict = &v
	}
	return out
}

var _ storage.SeriesStore = (*SeriesStore)(nil)
