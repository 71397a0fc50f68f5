// Package storagetest holds behaviour checks shared by every
// storage.SeriesStore backend. Backend packages call Run from their tests.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/storage"
)

// Mint is a well-formed mint address used across backend tests.
const Mint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// Series builds a gap-free daily series starting at start with the given closes.
func Series(start time.Time, closes ...float64) domain.Series {
	series := make(domain.Series, len(closes))
	for i, c := range closes {
		series[i] = domain.Bar{
			Date:   domain.Day(start).AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.1,
			Low:    c * 0.9,
			Close:  c,
			Volume: 1000 * float64(i+1),
		}
	}
	return series
}

// Run exercises a SeriesStore. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.SeriesStore) {
	t.Run("UpsertAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

		series := Series(now.AddDate(0, 0, -3), 1.0, 2.0, 1.5)
		require.NoError(t, store.Upsert(ctx, Mint, series, now))

		got, err := store.Get(ctx, Mint)
		require.NoError(t, err)
		assert.Equal(t, Mint, got.Mint)
		assert.True(t, got.LastUpdated.Equal(now), "LastUpdated = %v", got.LastUpdated)
		require.Len(t, got.Series, 3)
		for i := range series {
			assert.True(t, series[i].Date.Equal(got.Series[i].Date), "bar %d date", i)
			assert.Equal(t, series[i].Close, got.Series[i].Close)
			assert.Equal(t, series[i].Volume, got.Series[i].Volume)
		}
		assert.Nil(t, got.Verdict)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpsertReplacesSeriesAndClearsVerdict", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

		require.NoError(t, store.Upsert(ctx, Mint, Series(now, 1, 2, 3), now))
		require.NoError(t, store.SaveVerdict(ctx, Mint, domain.Verdict{IsPrePeak: true, Confidence: 0.8}))
		require.NoError(t, store.Upsert(ctx, Mint, Series(now, 1, 2, 3, 4), now.Add(time.Hour)))

		got, err := store.Get(ctx, Mint)
		require.NoError(t, err)
		assert.Len(t, got.Series, 4)
		assert.Nil(t, got.Verdict, "a verdict must not outlive the bars it was computed on")
		assert.True(t, got.LastUpdated.Equal(now.Add(time.Hour)))

		require.NoError(t, store.SaveVerdict(ctx, Mint, domain.Verdict{IsPrePeak: false, Confidence: 0.7}))
		got, err = store.Get(ctx, Mint)
		require.NoError(t, err)
		require.NotNil(t, got.Verdict)
		assert.False(t, got.Verdict.IsPrePeak)
		assert.Equal(t, 0.7, got.Verdict.Confidence)
	})

	t.Run("SaveVerdictNotFound", func(t *testing.T) {
		store := newStore(t)

		err := store.SaveVerdict(context.Background(), Mint, domain.Verdict{Confidence: 0.6})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpsertInvalidInput", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

		assert.ErrorIs(t, store.Upsert(ctx, "", Series(now, 1, 2, 3), now), storage.ErrInvalidInput)
		assert.ErrorIs(t, store.Upsert(ctx, Mint, nil, now), storage.ErrInvalidInput)

		_, err := store.Get(ctx, Mint)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("IsStale", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		updated := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

		stale, err := store.IsStale(ctx, Mint, time.Hour, updated)
		require.NoError(t, err)
		assert.True(t, stale, "missing record should be stale")

		require.NoError(t, store.Upsert(ctx, Mint, Series(updated, 1, 2, 3), updated))

		stale, err = store.IsStale(ctx, Mint, time.Hour, updated.Add(30*time.Minute))
		require.NoError(t, err)
		assert.False(t, stale)

		stale, err = store.IsStale(ctx, Mint, time.Hour, updated.Add(2*time.Hour))
		require.NoError(t, err)
		assert.True(t, stale)
	})

	t.Run("List", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

		for i := 0; i < 3; i++ {
			mint := fmt.Sprintf("mint-%d", i)
			updated := base.Add(time.Duration(i) * time.Hour)
			require.NoError(t, store.Upsert(ctx, mint, Series(base, 1, 2, float64(i+1)), updated))
		}
		require.NoError(t, store.SaveVerdict(ctx, "mint-1", domain.Verdict{IsPrePeak: false, Confidence: 0.7}))

		summaries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 3)
		assert.Equal(t, "mint-2", summaries[0].Mint)
		assert.Equal(t, "mint-1", summaries[1].Mint)
		assert.Equal(t, "mint-0", summaries[2].Mint)

		assert.Equal(t, 3.0, summaries[0].CurrentPrice)
		assert.Equal(t, 3000.0, summaries[0].Volume24h)
		assert.Equal(t, 3, summaries[0].DaysOfData)
		assert.Nil(t, summaries[0].Verdict)

		require.NotNil(t, summaries[1].Verdict)
		assert.False(t, summaries[1].Verdict.IsPrePeak)
		assert.Equal(t, 0.7, summaries[1].Verdict.Confidence)
	})
}
