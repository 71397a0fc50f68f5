package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carter293/hasItPumped/internal/domain"
)

// SeriesStore persists cached OHLCV series and verdicts keyed by mint address.
// Implementations must be safe for concurrent use; concurrent upserts of
// the same mint are last-writer-wins.
type SeriesStore interface {
	// Get returns the record for mint. Returns ErrNotFound if absent.
	Get(ctx context.Context, mint string) (*domain.TokenRecord, error)

	// Upsert replaces the cached series for mint and sets LastUpdated.
	// Any stored verdict is cleared; it described the replaced bars.
	Upsert(ctx context.Context, mint string, series domain.Series, updatedAt time.Time) error

	// SaveVerdict stores the latest verdict. Returns ErrNotFound if no record exists.
	SaveVerdict(ctx context.Context, mint string, verdict domain.Verdict) error

	// IsStale reports whether the record is missing or older than maxAge at asOf.
	IsStale(ctx context.Context, mint string, maxAge time.Duration, asOf time.Time) (bool, error)

	// List returns summaries of every record, most recently updated first.
	List(ctx context.Context) ([]*domain.TokenSummary, error)
}

// Stale reports whether a record updated at lastUpdated is older than maxAge at asOf.
func Stale(lastUpdated time.Time, maxAge time.Duration, asOf time.Time) bool {
	return asOf.Sub(lastUpdated) > maxAge
}

// ValidateUpsert checks upsert arguments shared by all backends.
func ValidateUpsert(mint string, series domain.Series) error {
	if mint == "" || len(series) == 0 {
		return ErrInvalidInput
	}
	if err := series.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// SortSummaries orders summaries most recently updated first, then by mint.
func SortSummaries(summaries []*domain.TokenSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastUpdated.Equal(summaries[j].LastUpdated) {
			return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
		}
		return summaries[i].Mint < summaries[j].Mint
	})
}
