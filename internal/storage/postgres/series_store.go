package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/storage"
)

// SeriesStore implements storage.SeriesStore using PostgreSQL.
// Uses two tables:
//   - token_records: one row per mint with the summary columns and verdict
//   - ohlcv_bars: daily bars, replaced wholesale on upsert
type SeriesStore struct {
	pool *Pool
}

// NewSeriesStore creates a new SeriesStore.
func NewSeriesStore(pool *Pool) *SeriesStore {
	return &SeriesStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SeriesStore = (*SeriesStore)(nil)

// Get returns the record and its bars for mint. Both are read from one
// REPEATABLE READ snapshot so a concurrent Upsert cannot interleave.
func (s *SeriesStore) Get(ctx context.Context, mint string) (*domain.TokenRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, storage.Wrap("begin get", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		SELECT mint, last_updated, is_pre_peak, confidence
		FROM token_records
		WHERE mint = $1
	`, mint)

	rec := &domain.TokenRecord{}
	var isPrePeak *bool
	var confidence *float64
	if err := row.Scan(&rec.Mint, &rec.LastUpdated, &isPrePeak, &confidence); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Wrap("get", err)
	}
	rec.LastUpdated = rec.LastUpdated.UTC()
	rec.Verdict = verdictFromColumns(isPrePeak, confidence)

	rows, err := tx.Query(ctx, `
		SELECT day, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE mint = $1
		ORDER BY day ASC
	`, mint)
	if err != nil {
		return nil, storage.Wrap("get bars", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, storage.Wrap("scan bar", err)
		}
		b.Date = domain.Day(b.Date)
		rec.Series = append(rec.Series, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("iterate bars", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storage.Wrap("commit get", err)
	}
	return rec, nil
}

// Upsert replaces the series for mint in a single transaction and
// clears the verdict, which no longer describes the new bars.
func (s *SeriesStore) Upsert(ctx context.Context, mint string, series domain.Series, updatedAt time.Time) error {
	if err := storage.ValidateUpsert(mint, series); err != nil {
		return err
	}
	last, _ := series.Last()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Wrap("begin upsert", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO token_records (mint, last_updated, day_count, current_price, volume_24h)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mint) DO UPDATE
		SET last_updated = EXCLUDED.last_updated,
		    day_count = EXCLUDED.day_count,
		    current_price = EXCLUDED.current_price,
		    volume_24h = EXCLUDED.volume_24h,
		    is_pre_peak = NULL,
		    confidence = NULL
	`, mint, updatedAt.UTC(), len(series), last.Close, last.Volume)
	if err != nil {
		return storage.Wrap("upsert record", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM ohlcv_bars WHERE mint = $1`, mint); err != nil {
		return storage.Wrap("delete bars", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"ohlcv_bars"},
		[]string{"mint", "day", "open", "high", "low", "close", "volume"},
		pgx.CopyFromSlice(len(series), func(i int) ([]any, error) {
			b := series[i]
			return []any{mint, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume}, nil
		}),
	)
	if err != nil {
		return storage.Wrap("copy bars", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.Wrap("commit upsert", err)
	}
	return nil
}

// SaveVerdict stores the latest verdict for mint.
func (s *SeriesStore) SaveVerdict(ctx context.Context, mint string, verdict domain.Verdict) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE token_records
		SET is_pre_peak = $2, confidence = $3
		WHERE mint = $1
	`, mint, verdict.IsPrePeak, verdict.Confidence)
	if err != nil {
		return storage.Wrap("save verdict", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// IsStale reports whether the record is missing or older than maxAge.
func (s *SeriesStore) IsStale(ctx context.Context, mint string, maxAge time.Duration, asOf time.Time) (bool, error) {
	var lastUpdated time.Time
	err := s.pool.QueryRow(ctx, `SELECT last_updated FROM token_records WHERE mint = $1`, mint).Scan(&lastUpdated)
	if err != nil {
		if isNotFoundError(err) {
			return true, nil
		}
		return false, storage.Wrap("is stale", err)
	}
	return storage.Stale(lastUpdated, maxAge, asOf), nil
}

// List returns summaries of all records without loading their bars.
func (s *SeriesStore) List(ctx context.Context) ([]*domain.TokenSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mint, last_updated, day_count, current_price, volume_24h, is_pre_peak, confidence
		FROM token_records
		ORDER BY last_updated DESC, mint ASC
	`)
	if err != nil {
		return nil, storage.Wrap("list", err)
	}
	defer rows.Close()

	var summaries []*domain.TokenSummary
	for rows.Next() {
		var sum domain.TokenSummary
		var isPrePeak *bool
		var confidence *float64
		err := rows.Scan(
			&sum.Mint,
			&sum.LastUpdated,
			&sum.DaysOfData,
			&sum.CurrentPrice,
			&sum.Volume24h,
			&isPrePeak,
			&confidence,
		)
		if err != nil {
			return nil, storage.Wrap("scan summary", err)
		}
		sum.LastUpdated = sum.LastUpdated.UTC()
		sum.Verdict = verdictFromColumns(isPrePeak, confidence)
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("iterate summaries", err)
	}

	return summaries, nil
}

// verdictFromColumns rebuilds a verdict from its nullable columns.
func verdictFromColumns(isPrePeak *bool, confidence *float64) *domain.Verdict {
	if isPrePeak == nil {
		return nil
	}
	v := &domain.Verdict{IsPrePeak: *isPrePeak}
	if confidence != nil {
		v.Confidence = *confidence
	}
	return v
}
