package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/storage"
)

// SeriesStore implements storage.SeriesStore using ClickHouse.
// token_records is a ReplacingMergeTree keyed by mint; every write inserts a
// new row with a higher row_version and reads use FINAL. Bars are written
// under a fresh series_version and only the version referenced by the
// winning record row is read back.
type SeriesStore struct {
	conn *Conn

	mu          sync.Mutex
	lastVersion uint64
}

// NewSeriesStore creates a new SeriesStore.
func NewSeriesStore(conn *Conn) *SeriesStore {
	return &SeriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SeriesStore = (*SeriesStore)(nil)

// recordRow mirrors one token_records row.
type recordRow struct {
	mint          string
	rowVersion    uint64
	seriesVersion uint64
	lastUpdated   time.Time
	dayCount      uint32
	currentPrice  float64
	volume24h     float64
	isPrePeak     *uint8
	confidence    *float64
}

func (r *recordRow) verdict() *domain.Verdict {
	if r.isPrePeak == nil {
		return nil
	}
	v := &domain.Verdict{IsPrePeak: *r.isPrePeak == 1}
	if r.confidence != nil {
		v.Confidence = *r.confidence
	}
	return v
}

// nextVersion returns a strictly increasing version based on wall time.
func (s *SeriesStore) nextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := uint64(time.Now().UnixNano())
	if v <= s.lastVersion {
		v = s.lastVersion + 1
	}
	s.lastVersion = v
	return v
}

// Get returns the record and its bars for mint.
func (s *SeriesStore) Get(ctx context.Context, mint string) (*domain.TokenRecord, error) {
	row, err := s.getRecord(ctx, mint)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT day, open, high, low, close, volume
		FROM ohlcv_bars FINAL
		WHERE mint = ? AND series_version = ?
		ORDER BY day ASC
	`, mint, row.seriesVersion)
	if err != nil {
		return nil, storage.Wrap("query bars", err)
	}
	defer rows.Close()

	series, err := scanBars(rows)
	if err != nil {
		return nil, storage.Wrap("scan bars", err)
	}

	return &domain.TokenRecord{
		Mint:        row.mint,
		LastUpdated: row.lastUpdated.UTC(),
		Series:      series,
		Verdict:     row.verdict(),
	}, nil
}

// Upsert writes the bars under a new series version, then a record row
// pointing at them with no verdict.
func (s *SeriesStore) Upsert(ctx context.Context, mint string, series domain.Series, updatedAt time.Time) error {
	if err := storage.ValidateUpsert(mint, series); err != nil {
		return err
	}

	version := s.nextVersion()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ohlcv_bars (
			mint, series_version, day, open, high, low, close, volume
		)
	`)
	if err != nil {
		return storage.Wrap("prepare bars batch", err)
	}
	for _, b := range series {
		err = batch.Append(mint, version, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return storage.Wrap("append bar", err)
		}
	}
	if err := batch.Send(); err != nil {
		return storage.Wrap("send bars batch", err)
	}

	last, _ := series.Last()
	row := &recordRow{
		mint:          mint,
		rowVersion:    version,
		seriesVersion: version,
		lastUpdated:   updatedAt.UTC(),
		dayCount:      uint32(len(series)),
		currentPrice:  last.Close,
		volume24h:     last.Volume,
	}
	return s.insertRecord(ctx, row)
}

// SaveVerdict writes a new record row carrying the verdict.
func (s *SeriesStore) SaveVerdict(ctx context.Context, mint string, verdict domain.Verdict) error {
	row, err := s.getRecord(ctx, mint)
	if err != nil {
		return err
	}

	var flag uint8
	if verdict.IsPrePeak {
		flag = 1
	}
	confidence := verdict.Confidence
	row.isPrePeak = &flag
	row.confidence = &confidence
	row.rowVersion = s.nextVersion()

	return s.insertRecord(ctx, row)
}

// IsStale reports whether the record is missing or older than maxAge.
func (s *SeriesStore) IsStale(ctx context.Context, mint string, maxAge time.Duration, asOf time.Time) (bool, error) {
	var lastUpdated time.Time
	err := s.conn.QueryRow(ctx, `
		SELECT last_updated FROM token_records FINAL WHERE mint = ?
	`, mint).Scan(&lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, storage.Wrap("is stale", err)
	}
	return storage.Stale(lastUpdated, maxAge, asOf), nil
}

// List returns summaries of all records, newest first.
func (s *SeriesStore) List(ctx context.Context) ([]*domain.TokenSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT mint, row_version, series_version, last_updated, day_count,
		       current_price, volume_24h, is_pre_peak, confidence
		FROM token_records FINAL
		ORDER BY last_updated DESC, mint ASC
	`)
	if err != nil {
		return nil, storage.Wrap("list", err)
	}
	defer rows.Close()

	var summaries []*domain.TokenSummary
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, storage.Wrap("scan summary", err)
		}
		summaries = append(summaries, &domain.TokenSummary{
			Mint:         r.mint,
			LastUpdated:  r.lastUpdated.UTC(),
			Verdict:      r.verdict(),
			CurrentPrice: r.currentPrice,
			Volume24h:    r.volume24h,
			DaysOfData:   int(r.dayCount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("iterate summaries", err)
	}

	return summaries, nil
}

func (s *SeriesStore) getRecord(ctx context.Context, mint string) (*recordRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT mint, row_version, series_version, last_updated, day_count,
		       current_price, volume_24h, is_pre_peak, confidence
		FROM token_records FINAL
		WHERE mint = ?
	`, mint)
	if err != nil {
		return nil, storage.Wrap("get record", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storage.Wrap("get record", err)
		}
		return nil, storage.ErrNotFound
	}
	r, err := scanRecord(rows)
	if err != nil {
		return nil, storage.Wrap("scan record", err)
	}
	return r, nil
}

func (s *SeriesStore) insertRecord(ctx context.Context, r *recordRow) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_records (
			mint, row_version, series_version, last_updated, day_count,
			current_price, volume_24h, is_pre_peak, confidence
		)
	`)
	if err != nil {
		return storage.Wrap("prepare record batch", err)
	}

	err = batch.Append(
		r.mint, r.rowVersion, r.seriesVersion, r.lastUpdated, r.dayCount,
		r.currentPrice, r.volume24h, r.isPrePeak, r.confidence,
	)
	if err != nil {
		return storage.Wrap("append record", err)
	}
	if err := batch.Send(); err != nil {
		return storage.Wrap("send record batch", err)
	}
	return nil
}

// scanRecord scans the current row of a token_records query.
func scanRecord(rows chRows) (*recordRow, error) {
	var r recordRow
	err := rows.Scan(
		&r.mint, &r.rowVersion, &r.seriesVersion, &r.lastUpdated, &r.dayCount,
		&r.currentPrice, &r.volume24h, &r.isPrePeak, &r.confidence,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// scanBars scans ohlcv_bars rows in query order.
func scanBars(rows chRows) (domain.Series, error) {
	var series domain.Series
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Date = domain.Day(b.Date)
		series = append(series, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return series, nil
}
