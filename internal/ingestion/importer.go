// Package ingestion imports previously exported daily OHLCV rows into a
// series store.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/fetcher"
	"github.com/carter293/hasItPumped/internal/solana"
	"github.com/carter293/hasItPumped/internal/storage"
)

// Row is one exported daily bar, as written to ohlcv_data.json.
type Row struct {
	Mint      string  `json:"mint_address"`
	Date      string  `json:"date"` // YYYY-MM-DD, optionally followed by a time part
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// Report summarizes one import.
type Report struct {
	Rows       int // rows read
	Skipped    int // rows without a usable mint, date or price
	Duplicates int // rows repeating a (mint, date) pair; the first one wins
	Tokens     int // tokens upserted
	Failed     int // tokens the store rejected
}

// ReadRows decodes a JSON array of rows.
func ReadRows(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// ImporterOptions contains configuration for creating an Importer.
type ImporterOptions struct {
	Store  storage.SeriesStore
	Logger logrus.FieldLogger
}

// Importer upserts grouped rows token by token.
type Importer struct {
	store storage.SeriesStore
	log   logrus.FieldLogger
}

// NewImporter creates a new Importer.
func NewImporter(opts ImporterOptions) *Importer {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Importer{
		store: opts.Store,
		log:   log.WithField("component", "ingestion"),
	}
}

// tokenRows is the accumulated state of one mint during grouping.
type tokenRows struct {
	bars    map[time.Time]domain.Bar
	updated time.Time
}

// Import groups rows by mint, gap-fills each series and upserts it with the
// latest created_at (or the last bar date) as its update time. Mints are
// processed in lexical order. A store failure on one token does not stop
// the import; a cancelled context does.
func (im *Importer) Import(ctx context.Context, rows []Row) (*Report, error) {
	report := &Report{Rows: len(rows)}
	tokens := make(map[string]*tokenRows)

	for _, r := range rows {
		mint := strings.TrimSpace(r.Mint)
		day, ok := parseDay(r.Date)
		if !ok || !validRow(r) || solana.ValidateMint(mint, false) != nil {
			report.Skipped++
			continue
		}

		tok, ok := tokens[mint]
		if !ok {
			tok = &tokenRows{bars: make(map[time.Time]domain.Bar)}
			tokens[mint] = tok
		}
		if _, dup := tok.bars[day]; dup {
			report.Duplicates++
			continue
		}
		tok.bars[day] = domain.Bar{
			Date:   day,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}

		updated := day
		if created, ok := parseDay(r.CreatedAt); ok {
			updated = created
		}
		if updated.After(tok.updated) {
			tok.updated = updated
		}
	}

	mints := make([]string, 0, len(tokens))
	for mint := range tokens {
		mints = append(mints, mint)
	}
	sort.Strings(mints)

	for _, mint := range mints {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tok := tokens[mint]
		series := tok.series()
		log := im.log.WithFields(logrus.Fields{"mint": mint, "days": len(series)})
		if err := im.store.Upsert(ctx, mint, series, tok.updated); err != nil {
			report.Failed++
			log.WithError(err).Warn("upsert failed")
			continue
		}
		report.Tokens++
		log.Debug("imported token")
	}

	im.log.WithFields(logrus.Fields{
		"rows":       report.Rows,
		"skipped":    report.Skipped,
		"duplicates": report.Duplicates,
		"tokens":     report.Tokens,
		"failed":     report.Failed,
	}).Info("import complete")
	return report, nil
}

func (t *tokenRows) series() domain.Series {
	days := make(domain.Series, 0, len(t.bars))
	for _, b := range t.bars {
		days = append(days, b)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return fetcher.FillGaps(days)
}

// parseDay reads the YYYY-MM-DD prefix of s as a UTC day.
func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(time.DateOnly) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func validRow(r Row) bool {
	for _, p := range []float64{r.Open, r.High, r.Low, r.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return false
		}
	}
	return !math.IsNaN(r.Volume) && !math.IsInf(r.Volume, 0) && r.Volume >= 0
}
