package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/storage"
)

// maxTxRetries bounds optimistic-lock retries on a contended mint.
const maxTxRetries = 5

// SeriesStore implements storage.SeriesStore using Redis.
type SeriesStore struct {
	client *goredis.Client
	prefix string
}

// NewSeriesStore creates a new SeriesStore. An empty prefix uses DefaultPrefix.
func NewSeriesStore(client *goredis.Client, prefix string) *SeriesStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SeriesStore{client: client, prefix: prefix}
}

// Compile-time interface check.
var _ storage.SeriesStore = (*SeriesStore)(nil)

// document is the JSON form of a token record.
type document struct {
	Mint        string          `json:"mint"`
	LastUpdated time.Time       `json:"last_updated"`
	Series      domain.Series   `json:"series"`
	Verdict     *domain.Verdict `json:"verdict,omitempty"`
}

func (d *document) record() *domain.TokenRecord {
	return &domain.TokenRecord{
		Mint:        d.Mint,
		LastUpdated: d.LastUpdated.UTC(),
		Series:      d.Series,
		Verdict:     d.Verdict,
	}
}

func (s *SeriesStore) tokenKey(mint string) string {
	return s.prefix + ":token:" + mint
}

func (s *SeriesStore) summariesKey() string {
	return s.prefix + ":summaries"
}

func (s *SeriesStore) indexKey() string {
	return s.prefix + ":tokens"
}

// Get returns the record for mint.
func (s *SeriesStore) Get(ctx context.Context, mint string) (*domain.TokenRecord, error) {
	doc, err := s.load(ctx, s.client, mint)
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}

// Upsert replaces the series for mint and drops any stored verdict.
func (s *SeriesStore) Upsert(ctx context.Context, mint string, series domain.Series, updatedAt time.Time) error {
	if err := storage.ValidateUpsert(mint, series); err != nil {
		return err
	}

	return s.update(ctx, "upsert", mint, func(*document) (*document, error) {
		return &document{
			Mint:        mint,
			LastUpdated: updatedAt.UTC(),
			Series:      series.Ascending(),
		}, nil
	})
}

// SaveVerdict stores the latest verdict for mint.
func (s *SeriesStore) SaveVerdict(ctx context.Context, mint string, verdict domain.Verdict) error {
	return s.update(ctx, "save verdict", mint, func(doc *document) (*document, error) {
		if doc == nil {
			return nil, storage.ErrNotFound
		}
		doc.Verdict = &verdict
		return doc, nil
	})
}

// IsStale reports whether the record is missing or older than maxAge.
func (s *SeriesStore) IsStale(ctx context.Context, mint string, maxAge time.Duration, asOf time.Time) (bool, error) {
	score, err := s.client.ZScore(ctx, s.indexKey(), mint).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return true, nil
		}
		return false, storage.Wrap("is stale", err)
	}
	return storage.Stale(time.UnixMilli(int64(score)), maxAge, asOf), nil
}

// List returns summaries of all records, newest first.
func (s *SeriesStore) List(ctx context.Context) ([]*domain.TokenSummary, error) {
	raw, err := s.client.HGetAll(ctx, s.summariesKey()).Result()
	if err != nil {
		return nil, storage.Wrap("list", err)
	}

	summaries := make([]*domain.TokenSummary, 0, len(raw))
	for mint, data := range raw {
		var sum domain.TokenSummary
		if err := json.Unmarshal([]byte(data), &sum); err != nil {
			return nil, storage.Wrap("decode summary "+mint, err)
		}
		sum.LastUpdated = sum.LastUpdated.UTC()
		summaries = append(summaries, &sum)
	}
	storage.SortSummaries(summaries)
	return summaries, nil
}

// load reads and decodes the document for mint.
func (s *SeriesStore) load(ctx context.Context, c goredis.Cmdable, mint string) (*document, error) {
	data, err := c.Get(ctx, s.tokenKey(mint)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Wrap("get", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, storage.Wrap("decode", err)
	}
	return &doc, nil
}

// update runs fn against the current document under WATCH and writes the
// result, its summary and its index entry in one MULTI.
func (s *SeriesStore) update(ctx context.Context, op, mint string, fn func(*document) (*document, error)) error {
	key := s.tokenKey(mint)

	txf := func(tx *goredis.Tx) error {
		current, err := s.load(ctx, tx, mint)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		summary, err := json.Marshal(next.record().Summary())
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.HSet(ctx, s.summariesKey(), mint, summary)
			pipe.ZAdd(ctx, s.indexKey(), goredis.Z{
				Score:  float64(next.LastUpdated.UnixMilli()),
				Member: mint,
			})
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			return storage.Wrap(op, err)
		}
	}
	return storage.Wrap(op, err)
}
