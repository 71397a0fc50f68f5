package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/storage"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testSeries(start time.Time, closes ...float64) domain.Series {
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

func TestSeriesStore_UpsertAndGet(t *testing.T) {
	store := NewSeriesStore()
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	series := testSeries(now.AddDate(0, 0, -3), 1.0, 2.0, 1.5)
	if err := store.Upsert(ctx, testMint, series, now); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, testMint)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Mint != testMint {
		t.Errorf("Mint mismatch: got %s, want %s", got.Mint, testMint)
	}
	if !got.LastUpdated.Equal(now) {
		t.Errorf("LastUpdated mismatch: got %v, want %v", got.LastUpdated, now)
	}
	if len(got.Series) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got.Series))
	}
	if got.Verdict != nil {
		t.Errorf("expected no verdict, got %+v", got.Verdict)
	}
}

func TestSeriesStore_GetNotFound(t *testing.T) {
	store := NewSeriesStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSeriesStore_ReturnsCopies(t *testing.T) {
	store := NewSeriesStore()
	ctx := context.Background()
	now := time.Now().UTC()

	series := testSeries(now.AddDate(0, 0, -3), 1.0, 2.0, 3.0)
	if err := store.Upsert(ctx, testMint, series, now); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Mutating the input or a returned record must not leak into the store.
	series[0].Close = 99
	got, _ := store.Get(ctx, testMint)
	got.Series[1].Close = 42

	again, _ := store.Get(ctx, testMint)
	if again.Series[0].Close != 1.0 || again.Series[1].Close != 2.0 {
		t.Errorf("store state was mutated through a shared slice: %+v", again.Series)
	}
}

func TestSeriesStore_UpsertClearsVerdict(t *testing.T) {
	store := NewSeriesStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Upsert(ctx, testMint, testSeries(now, 1, 2, 3), now); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.SaveVerdict(ctx, testMint, domain.Verdict{IsPrePeak: true, Confidence: 0.8}); err != nil {
		t.Fatalf("SaveVerdict failed: %v", err)
	}
	if err := store.Upsert(ctx, testMint, testSeries(now, 1, 2, 3, 4), now.Add(time.Hour)); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, testMint)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Series) != 4 {
		t.Errorf("expected replaced series of 4 bars, got %d", len(got.Series))
	}
	if got.Verdict != nil {
		t.Errorf("verdict of the old series survived the upsert: %+v", got.Verdict)
	}
}

func TestSeriesStore_SaveVerdictNotFound(t *testing.T) {
	store := NewSeriesStore()

	err := store.SaveVerdict(context.Background(), testMint, domain.Verdict{Confidence: 0.6})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSeriesStore_UpsertInvalidInput(t *testing.T) {
	store := NewSeriesStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Upsert(ctx, "", testSeries(now, 1, 2, 3), now); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty mint: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Upsert(ctx, testMint, nil, now); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty series: expected ErrInvalidInput, got %v", err)
	}

	gapped := testSeries(now, 1, 2, 3)
	gapped[2].Date = gapped[2].Date.AddDate(0, 0, 1)
	if err := store.Upsert(ctx, testMint, gapped, now); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("gapped series: expected ErrInvalidInput, got %v", err)
	}
}

func TestSeriesStore_IsStale(t *testing.T) {
	store := NewSeriesStore()
	ctx := context.Background()
	updated := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	stale, err := store.IsStale(ctx, testMint, time.Hour, updated)
	if err != nil {
		t.Fatalf("IsStale failed: %v", err)
	}
	if !stale {
		t.Error("missing record should be stale")
	}

	if err := store.Upsert(ctx, testMint, testSeries(updated, 1, 2, 3), updated); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	stale, _ = store.IsStale(ctx, testMint, time.Hour, updated.Add(30*time.Minute))
	if stale {
		t.Error("record within maxAge should be fresh")
	}
	stale, _ = store.IsStale(ctx, testMint, time.Hour, updated.Add(2*time.Hour))
	if !stale {
		t.Error("record older than maxAge should be stale")
	}
}

func TestSeriesStore_List(t *testing.T) {
	store := NewSeriesStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		mint := fmt.Sprintf("mint-%d", i)
		if err := store.Upsert(ctx, mint, testSeries(base, 1, 2, float64(i+1)), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if err := store.SaveVerdict(ctx, "mint-1", domain.Verdict{IsPrePeak: false, Confidence: 0.7}); err != nil {
		t.Fatalf("SaveVerdict failed: %v", err)
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].Mint != "mint-2" || summaries[2].Mint != "mint-0" {
		t.Errorf("expected newest first, got %s..%s", summaries[0].Mint, summaries[2].Mint)
	}
	if summaries[0].CurrentPrice != 3 || summaries[0].DaysOfData != 3 || summaries[0].Volume24h != 3000 {
		t.Errorf("unexpected summary: %+v", summaries[0])
	}
	if summaries[1].Verdict == nil || summaries[1].Verdict.IsPrePeak {
		t.Errorf("expected post-peak verdict on mint-1, got %+v", summaries[1].Verdict)
	}
}

func TestSeriesStore_ConcurrentUpsert(t *testing.T) {
	store := NewSeriesStore()
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Upsert(ctx, testMint, testSeries(now, 1, 2, float64(i+1)), now)
			_, _ = store.Get(ctx, testMint)
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, testMint)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Series) != 3 {
		t.Errorf("expected 3 bars from the last writer, got %d", len(got.Series))
	}
}
