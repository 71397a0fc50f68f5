// Package features derives the fixed-width feature vector of a daily series.
//
// Extract is pure and deterministic: the same bars give bit-identical
// vectors regardless of input order. Any value whose computation needs a
// zero denominator or produces NaN/Inf is replaced by 0.
package features

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/carter293/hasItPumped/internal/domain"
)

// Feature indices. The order is part of the model contract.
const (
	CloseSlope = iota
	CloseR2
	LogCloseSlope
	LogCloseR2
	PctChange
	DrawdownRatio
	DaysSincePeak
	ReturnStd
	ATRRatio
	VolumeSlope
	RecentVolumeRatio
	DaysOfHistory
	LastReturn
	Volatility7d
	SMASpread
	Return21d

	// Width is the number of features.
	Width
)

// Window lengths.
const (
	RecentVolumeWindow = 3
	VolatilityWindow   = 7
	ShortSMAWindow     = 7
	LongSMAWindow      = 21
	LongReturnLag      = 21
)

var names = [Width]string{
	CloseSlope:        "close_slope",
	CloseR2:           "close_r2",
	LogCloseSlope:     "log_close_slope",
	LogCloseR2:        "log_close_r2",
	PctChange:         "pct_change",
	DrawdownRatio:     "drawdown_ratio",
	DaysSincePeak:     "days_since_peak",
	ReturnStd:         "return_std",
	ATRRatio:          "atr_ratio",
	VolumeSlope:       "volume_slope",
	RecentVolumeRatio: "recent_volume_ratio",
	DaysOfHistory:     "days_of_history",
	LastReturn:        "last_return",
	Volatility7d:      "volatility_7d",
	SMASpread:         "sma_7_21_spread",
	Return21d:         "return_21d",
}

// ErrEmptySeries is returned by Extract for a series without bars.
var ErrEmptySeries = errors.New("features: empty series")

// Vector is a feature vector of length Width, indexed by the constants above.
type Vector []float64

// Names returns the feature names in vector order.
func Names() []string {
	out := make([]string, Width)
	copy(out, names[:])
	return out
}

// Extract computes the feature vector of series.
func Extract(series domain.Series) (Vector, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	bars := series.Ascending()
	n := len(bars)

	idx := make([]float64, n)
	closes := make([]float64, n)
	logCloses := make([]float64, n)
	volumes := make([]float64, n)
	ranges := make([]float64, n)
	for i, b := range bars {
		idx[i] = float64(i)
		closes[i] = b.Close
		logCloses[i] = math.Log(b.Close)
		volumes[i] = b.Volume
		ranges[i] = ratio(b.High-b.Low, b.Close)
	}
	returns := dailyReturns(closes)

	first, last := closes[0], closes[n-1]
	peak, peakIdx := latestMax(closes)
	meanClose := stat.Mean(closes, nil)
	meanVolume := stat.Mean(volumes, nil)

	v := make(Vector, Width)

	slope, r2 := trend(idx, closes)
	v[CloseSlope] = ratio(slope, meanClose)
	v[CloseR2] = r2

	v[LogCloseSlope], v[LogCloseR2] = trend(idx, logCloses)

	v[PctChange] = ratio(last, first) - 1
	v[DrawdownRatio] = ratio(last, peak)
	v[DaysSincePeak] = float64(n - 1 - peakIdx)
	v[ReturnStd] = stdDev(returns)
	v[ATRRatio] = stat.Mean(ranges, nil)

	volSlope, _ := trend(idx, volumes)
	v[VolumeSlope] = ratio(volSlope, meanVolume)
	v[RecentVolumeRatio] = ratio(stat.Mean(tail(volumes, RecentVolumeWindow), nil), meanVolume)

	v[DaysOfHistory] = float64(n)

	if len(returns) > 0 {
		v[LastReturn] = returns[len(returns)-1]
	}
	v[Volatility7d] = stdDev(tail(returns, VolatilityWindow))

	sma7 := stat.Mean(tail(closes, ShortSMAWindow), nil)
	sma21 := stat.Mean(tail(closes, LongSMAWindow), nil)
	v[SMASpread] = ratio(sma7-sma21, last)

	if n > LongReturnLag {
		v[Return21d] = ratio(last, closes[n-1-LongReturnLag]) - 1
	}

	for i, x := range v {
		v[i] = finite(x)
	}
	return v, nil
}

// trend fits y = a + b*x by least squares and returns b and R².
func trend(x, y []float64) (slope, r2 float64) {
	if len(x) < 2 {
		return 0, 0
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if !isFinite(alpha) || !isFinite(beta) {
		return 0, 0
	}
	return finite(beta), finite(stat.RSquared(x, y, nil, alpha, beta))
}

// dailyReturns returns c[i]/c[i-1]-1 for i >= 1.
func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = finite(ratio(closes[i], closes[i-1]) - 1)
	}
	return out
}

// latestMax returns the maximum and the index of its last occurrence.
func latestMax(xs []float64) (float64, int) {
	best, at := xs[0], 0
	for i, x := range xs {
		if x >= best {
			best, at = x, i
		}
	}
	return best, at
}

// stdDev is the sample standard deviation, 0 below two values.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return finite(stat.StdDev(xs, nil))
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func finite(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return x
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
