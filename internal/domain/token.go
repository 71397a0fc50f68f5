package domain

import (
	"strings"
	"time"
)

// Verdict is the classifier output for a token.
type Verdict struct {
	IsPrePeak  bool    `json:"is_pre_peak"` // true when the maximum has not occurred yet
	Confidence float64 `json:"confidence"`  // probability of the predicted class, in [0.5, 1]
}

// TokenRecord is the cached state of one token.
// Corresponds to token_records table (plus its ohlcv_bars rows).
type TokenRecord struct {
	Mint        string    // token mint address
	LastUpdated time.Time // when the series was last replaced
	Series      Series    // ascending daily bars
	Verdict     *Verdict  // last verdict, nil until the first classification
}

// Summary derives the stats projection of a record.
func (r *TokenRecord) Summary() *TokenSummary {
	s := &TokenSummary{
		Mint:        r.Mint,
		LastUpdated: r.LastUpdated,
		DaysOfData:  len(r.Series),
	}
	if last, ok := r.Series.Last(); ok {
		s.CurrentPrice = last.Close
		s.Volume24h = last.Volume
	}
	if r.Verdict != nil {
		v := *r.Verdict
		s.Verdict = &v
	}
	return s
}

// TokenSummary is the per-token row of the stats view.
type TokenSummary struct {
	Mint         string    `json:"mint_address"`
	LastUpdated  time.Time `json:"last_updated"`
	Verdict      *Verdict  `json:"verdict,omitempty"`
	CurrentPrice float64   `json:"current_price"`
	Volume24h    float64   `json:"volume_24h"`
	DaysOfData   int       `json:"days_of_data"`
}

// Stats aggregates verdicts over every stored token.
type Stats struct {
	Total         int             `json:"total_tokens"`
	PrePeakCount  int             `json:"pre_peak_count"`
	PostPeakCount int             `json:"post_peak_count"`
	Recent        []*TokenSummary `json:"recent_tokens"`
}

// Analysis result sources.
const (
	SourceCache    = "cache"
	SourceUpstream = "upstream"
)

// AnalysisRequest is the typed input of an analysis.
type AnalysisRequest struct {
	TokenID string `json:"mint_address"`
}

// Normalize trims surrounding whitespace from the identifier.
func (r AnalysisRequest) Normalize() AnalysisRequest {
	r.TokenID = strings.TrimSpace(r.TokenID)
	return r
}

// AnalysisResult is the outcome of one analysis.
type AnalysisResult struct {
	RequestID  string    `json:"request_id"`
	Mint       string    `json:"mint_address"`
	Series     Series    `json:"data"` // most recent first
	IsPrePeak  bool      `json:"is_pre_peak"`
	Confidence float64   `json:"confidence"`
	DaysOfData int       `json:"days_of_data"`
	Source     string    `json:"source"` // cache | upstream
	AnalyzedAt time.Time `json:"analyzed_at"`
}
