// Package fetcher turns upstream DEX trades into a clean daily OHLCV series.
package fetcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/bitquery"
	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/solana"
)

// TradeSource returns the trade history of a mint in any order.
// *bitquery.Client implements it.
type TradeSource interface {
	FetchTrades(ctx context.Context, mint string) (bitquery.History, error)
}

// Options configures a Fetcher.
type Options struct {
	// RequireOnCurve rejects mints that are not valid ed25519 points.
	RequireOnCurve bool
	Logger         logrus.FieldLogger
}

// Fetcher validates token ids and assembles daily bars from trades.
type Fetcher struct {
	source         TradeSource
	requireOnCurve bool
	log            logrus.FieldLogger
}

// New creates a Fetcher over source.
func New(source TradeSource, opts Options) *Fetcher {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Fetcher{
		source:         source,
		requireOnCurve: opts.RequireOnCurve,
		log:            log.WithField("component", "fetcher"),
	}
}

// Fetch returns the ascending, gap-free daily series of tokenID.
//
// Errors: domain.ErrInvalidIdentifier before any network call,
// domain.ErrUpstream from the source, domain.ErrTokenNotFound when the
// source has no usable trades, domain.ErrInsufficientData below MinDays.
func (f *Fetcher) Fetch(ctx context.Context, tokenID string) (domain.Series, error) {
	if err := solana.ValidateMint(tokenID, f.requireOnCurve); err != nil {
		return nil, err
	}

	hist, err := f.source.FetchTrades(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("fetch trades for %s: %w", tokenID, err)
	}
	trades := hist.Trades
	if len(trades) == 0 {
		return nil, fmt.Errorf("%w: no trades for %s", domain.ErrTokenNotFound, tokenID)
	}

	series, dropped := BuildSeries(trades)
	if dropped > 0 {
		f.log.WithFields(logrus.Fields{
			"mint":    tokenID,
			"dropped": dropped,
			"trades":  len(trades),
		}).Debug("dropped invalid trades")
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no valid trades for %s", domain.ErrTokenNotFound, tokenID)
	}
	if hist.Truncated {
		// The oldest day only holds the trades that fit under the page cap.
		f.log.WithFields(logrus.Fields{
			"mint": tokenID,
			"day":  series[0].Date.Format(time.DateOnly),
		}).Warn("trade history truncated, dropping partial oldest day")
		series = series[1:]
	}
	if len(series) < domain.MinDays {
		return nil, fmt.Errorf("%w: %d days available, %d required",
			domain.ErrInsufficientData, len(series), domain.MinDays)
	}

	f.log.WithFields(logrus.Fields{
		"mint":   tokenID,
		"trades": len(trades) - dropped,
		"days":   len(series),
	}).Debug("built daily series")

	return series, nil
}

// point is a trade converted to floats.
type point struct {
	at     time.Time
	price  float64
	volume float64
}

// BuildSeries buckets trades into UTC calendar days and fills days without
// trades with the previous close and zero volume. The result is ascending.
// It also returns the number of trades dropped for a non-positive or
// non-finite price or a negative or non-finite volume.
func BuildSeries(trades []bitquery.Trade) (domain.Series, int) {
	points := make([]point, 0, len(trades))
	dropped := 0
	for _, t := range trades {
		p := point{
			at:     t.Time.UTC(),
			price:  t.Price.InexactFloat64(),
			volume: t.Volume.InexactFloat64(),
		}
		if !validPoint(p) {
			dropped++
			continue
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, dropped
	}

	// Stable so that same-instant trades keep their upstream order.
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].at.Before(points[j].at)
	})

	var days domain.Series
	for _, p := range points {
		day := domain.Day(p.at)
		if n := len(days); n > 0 && days[n-1].Date.Equal(day) {
			b := &days[n-1]
			b.High = math.Max(b.High, p.price)
			b.Low = math.Min(b.Low, p.price)
			b.Close = p.price
			b.Volume += p.volume
			continue
		}
		days = append(days, domain.Bar{
			Date:   day,
			Open:   p.price,
			High:   p.price,
			Low:    p.price,
			Close:  p.price,
			Volume: p.volume,
		})
	}

	return FillGaps(days), dropped
}

// FillGaps inserts a flat zero-volume bar at the previous close for every
// missing day of an ascending series with unique days.
func FillGaps(days domain.Series) domain.Series {
	if len(days) == 0 {
		return days
	}

	filled := make(domain.Series, 0, len(days))
	filled = append(filled, days[0])
	for _, b := range days[1:] {
		prev := filled[len(filled)-1]
		for d := prev.Date.AddDate(0, 0, 1); d.Before(b.Date); d = d.AddDate(0, 0, 1) {
			filled = append(filled, domain.Bar{
				Date:  d,
				Open:  prev.Close,
				High:  prev.Close,
				Low:   prev.Close,
				Close: prev.Close,
			})
		}
		filled = append(filled, b)
	}
	return filled
}

func validPoint(p point) bool {
	if math.IsNaN(p.price) || math.IsInf(p.price, 0) || p.price <= 0 {
		return false
	}
	if math.IsNaN(p.volume) || math.IsInf(p.volume, 0) || p.volume < 0 {
		return false
	}
	return !p.at.IsZero()
}
