package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carter293/hasItPumped/internal/bitquery"
	"github.com/carter293/hasItPumped/internal/domain"
)

const testMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

// mockSource returns canned trades and counts calls.
type mockSource struct {
	trades    []bitquery.Trade
	truncated bool
	err       error
	calls     int
}

func (m *mockSource) FetchTrades(ctx context.Context, mint string) (bitquery.History, error) {
	m.calls++
	return bitquery.History{Trades: m.trades, Truncated: m.truncated}, m.err
}

func trade(day, hour int, price, volume float64) bitquery.Trade {
	return bitquery.Trade{
		Time:   time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC),
		Price:  decimal.NewFromFloat(price),
		Volume: decimal.NewFromFloat(volume),
	}
}

func TestBuildSeries_Bucketing(t *testing.T) {
	// Newest first, as the upstream returns them.
	trades := []bitquery.Trade{
		trade(2, 20, 3.0, 5),
		trade(2, 1, 2.5, 5),
		trade(1, 23, 1.2, 10),
		trade(1, 15, 2.0, 10),
		trade(1, 9, 0.8, 10),
		trade(1, 8, 1.0, 10),
	}

	series, dropped := BuildSeries(trades)
	if dropped != 0 {
		t.Errorf("expected no dropped trades, got %d", dropped)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 days, got %d", len(series))
	}

	day1 := series[0]
	if !day1.Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", day1.Date)
	}
	if day1.Open != 1.0 || day1.Close != 1.2 {
		t.Errorf("open/close should follow chronology: got %v/%v", day1.Open, day1.Close)
	}
	if day1.High != 2.0 || day1.Low != 0.8 {
		t.Errorf("unexpected high/low %v/%v", day1.High, day1.Low)
	}
	if day1.Volume != 40 {
		t.Errorf("expected volume 40, got %v", day1.Volume)
	}

	if series[1].Open != 2.5 || series[1].Close != 3.0 || series[1].Volume != 10 {
		t.Errorf("unexpected day 2 bar: %+v", series[1])
	}
}

func TestBuildSeries_GapFill(t *testing.T) {
	// Trades on days 1, 2 and 5 only.
	trades := []bitquery.Trade{
		trade(5, 12, 4.0, 7),
		trade(2, 12, 2.0, 3),
		trade(1, 12, 1.0, 1),
	}

	series, _ := BuildSeries(trades)
	if len(series) != 5 {
		t.Fatalf("expected 5 days, got %d", len(series))
	}
	if err := series.Validate(); err != nil {
		t.Fatalf("series not canonical: %v", err)
	}

	for i, day := range []int{3, 4} {
		b := series[2+i]
		if b.Date.Day() != day {
			t.Errorf("expected filled day %d, got %v", day, b.Date)
		}
		if b.Open != 2.0 || b.High != 2.0 || b.Low != 2.0 || b.Close != 2.0 {
			t.Errorf("filled day %d should carry close 2.0: %+v", day, b)
		}
		if b.Volume != 0 {
			t.Errorf("filled day %d should have zero volume, got %v", day, b.Volume)
		}
	}
	if series[4].Close != 4.0 {
		t.Errorf("expected last close 4.0, got %v", series[4].Close)
	}
}

func TestBuildSeries_DropsInvalidTrades(t *testing.T) {
	trades := []bitquery.Trade{
		trade(1, 10, 1.0, 5),
		trade(1, 11, 0, 5),
		trade(1, 12, -2.0, 5),
		trade(1, 13, 1.5, -1),
		{Price: decimal.NewFromInt(1), Volume: decimal.NewFromInt(1)}, // zero time
	}

	series, dropped := BuildSeries(trades)
	if dropped != 4 {
		t.Errorf("expected 4 dropped trades, got %d", dropped)
	}
	if len(series) != 1 || series[0].Close != 1.0 || series[0].Volume != 5 {
		t.Errorf("unexpected series: %+v", series)
	}
}

func TestFillGaps_Empty(t *testing.T) {
	if got := FillGaps(nil); len(got) != 0 {
		t.Errorf("expected empty series, got %d bars", len(got))
	}
}

func TestFetcher_Fetch(t *testing.T) {
	src := &mockSource{trades: []bitquery.Trade{
		trade(3, 12, 3.0, 1),
		trade(1, 12, 1.0, 1),
	}}
	f := New(src, Options{})

	series, err := f.Fetch(context.Background(), testMint)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 days, got %d", len(series))
	}
	if !series[0].Date.Before(series[2].Date) {
		t.Error("series should be ascending")
	}
}

func TestFetcher_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mint      string
		src       *mockSource
		wantErr   error
		wantCalls int
	}{
		{
			name:      "invalid identifier",
			mint:      "not-a-mint",
			src:       &mockSource{},
			wantErr:   domain.ErrInvalidIdentifier,
			wantCalls: 0,
		},
		{
			name:      "empty identifier",
			mint:      "",
			src:       &mockSource{},
			wantErr:   domain.ErrInvalidIdentifier,
			wantCalls: 0,
		},
		{
			name:      "no trades",
			mint:      testMint,
			src:       &mockSource{},
			wantErr:   domain.ErrTokenNotFound,
			wantCalls: 1,
		},
		{
			name:      "only invalid trades",
			mint:      testMint,
			src:       &mockSource{trades: []bitquery.Trade{trade(1, 1, 0, 1)}},
			wantErr:   domain.ErrTokenNotFound,
			wantCalls: 1,
		},
		{
			name: "two days",
			mint: testMint,
			src: &mockSource{trades: []bitquery.Trade{
				trade(2, 1, 1, 1),
				trade(1, 1, 1, 1),
			}},
			wantErr:   domain.ErrInsufficientData,
			wantCalls: 1,
		},
		{
			name:      "upstream failure",
			mint:      testMint,
			src:       &mockSource{err: domain.ErrUpstream},
			wantErr:   domain.ErrUpstream,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.src, Options{}).Fetch(context.Background(), tt.mint)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.src.calls != tt.wantCalls {
				t.Errorf("expected %d source calls, got %d", tt.wantCalls, tt.src.calls)
			}
		})
	}
}

func TestFetcher_InsufficientDataMessage(t *testing.T) {
	src := &mockSource{trades: []bitquery.Trade{trade(1, 1, 1, 1)}}

	_, err := New(src, Options{}).Fetch(context.Background(), testMint)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if !strings.Contains(err.Error(), "1 days available, 3 required") {
		t.Errorf("message should carry day counts: %q", err.Error())
	}
}

func TestFetcher_TruncatedHistoryDropsOldestDay(t *testing.T) {
	src := &mockSource{
		truncated: true,
		trades: []bitquery.Trade{
			trade(5, 12, 5.0, 1),
			trade(4, 12, 4.0, 1),
			trade(3, 12, 3.0, 1),
			trade(2, 23, 2.0, 1),
		},
	}

	series, err := New(src, Options{}).Fetch(context.Background(), testMint)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 days, got %d", len(series))
	}
	if series[0].Date.Day() != 3 {
		t.Errorf("expected series to start on day 3, got %v", series[0].Date)
	}
}

func TestFetcher_TruncatedHistoryBelowMinimum(t *testing.T) {
	src := &mockSource{
		truncated: true,
		trades: []bitquery.Trade{
			trade(3, 12, 3.0, 1),
			trade(2, 12, 2.0, 1),
			trade(1, 12, 1.0, 1),
		},
	}

	_, err := New(src, Options{}).Fetch(context.Background(), testMint)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
