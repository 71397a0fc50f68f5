package domain

import (
	"fmt"
	"sort"
	"time"
)

// MinDays is the minimum history length required for classification.
const MinDays = 3

// Bar represents one calendar day of OHLCV data for a token.
// Corresponds to ohlcv_bars table in PostgreSQL/ClickHouse.
type Bar struct {
	Date   time.Time `json:"date"`   // UTC midnight of the trading day
	Open   float64   `json:"open"`   // price of the first trade of the day
	High   float64   `json:"high"`   // highest trade price of the day
	Low    float64   `json:"low"`    // lowest trade price of the day
	Close  float64   `json:"close"`  // price of the last trade of the day
	Volume float64   `json:"volume"` // summed trade volume, 0 for gap-filled days
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Series is a sequence of daily bars.
// Stored series are ascending by date, one bar per day without gaps.
type Series []Bar

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s)
}

// Ascending returns a copy of the series sorted oldest first.
func (s Series) Ascending() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Descending returns a copy of the series sorted most recent first.
func (s Series) Descending() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// Last returns the most recent bar regardless of the slice order.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	last := s[0]
	for _, b := range s[1:] {
		if b.Date.After(last.Date) {
			last = b
		}
	}
	return last, true
}

// Validate checks the canonical form: ascending UTC days, no duplicates,
// no gaps, positive prices and non-negative volume.
func (s Series) Validate() error {
	for i, b := range s {
		if !b.Date.Equal(Day(b.Date)) {
			return fmt.Errorf("bar %d: date %s is not a UTC day", i, b.Date.Format(time.RFC3339))
		}
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("bar %d: non-positive price", i)
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar %d: negative volume", i)
		}
		if i == 0 {
			continue
		}
		want := s[i-1].Date.AddDate(0, 0, 1)
		if !b.Date.Equal(want) {
			return fmt.Errorf("bar %d: expected %s, got %s", i, want.Format(time.DateOnly), b.Date.Format(time.DateOnly))
		}
	}
	return nil
}
