// Package app wires configuration into stores and the orchestrator for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/bitquery"
	"github.com/carter293/hasItPumped/internal/classifier"
	"github.com/carter293/hasItPumped/internal/config"
	"github.com/carter293/hasItPumped/internal/features"
	"github.com/carter293/hasItPumped/internal/fetcher"
	"github.com/carter293/hasItPumped/internal/observability"
	"github.com/carter293/hasItPumped/internal/orchestrator"
	"github.com/carter293/hasItPumped/internal/storage"
	chstore "github.com/carter293/hasItPumped/internal/storage/clickhouse"
	"github.com/carter293/hasItPumped/internal/storage/memory"
	"github.com/carter293/hasItPumped/internal/storage/migrations"
	pgstore "github.com/carter293/hasItPumped/internal/storage/postgres"
	redisstore "github.com/carter293/hasItPumped/internal/storage/redis"
)

// OpenStore connects the configured series store. The returned cleanup
// releases its connections.
func OpenStore(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (storage.SeriesStore, func(), error) {
	log = log.WithField("driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory, "":
		log.Warn("using in-memory store, data is lost on exit")
		return memory.NewSeriesStore(), func() {}, nil

	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if cfg.Migrate {
			if err := migrations.RunPostgres(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
			log.Info("postgres schema up to date")
		}
		return pgstore.NewSeriesStore(pool), pool.Close, nil

	case config.DriverClickhouse:
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.Migrate {
			conn, err = migrations.RunClickhouse(ctx, cfg.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		return chstore.NewSeriesStore(conn), func() { conn.Close() }, nil

	case config.DriverRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewSeriesStore(client, cfg.RedisPrefix), func() { client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// LoadClassifier loads the model artifact and binds it to the feature layout.
func LoadClassifier(path string) (*classifier.Classifier, error) {
	model, err := classifier.LoadModel(path)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.New(model, features.Names())
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return clf, nil
}

// NewOrchestrator builds the upstream client, fetcher and classifier and
// returns an orchestrator over store. A model that cannot be loaded or does
// not match the feature layout is an error.
func NewOrchestrator(cfg *config.Config, store storage.SeriesStore, log logrus.FieldLogger, metrics *observability.Metrics) (*orchestrator.Orchestrator, error) {
	clf, err := LoadClassifier(cfg.Model.Path)
	if err != nil {
		return nil, err
	}

	up := cfg.Upstream
	if up.AccessToken == "" {
		log.Warn("upstream access token not set, requests will be rejected")
	}
	client := bitquery.NewClient(up.AccessToken,
		bitquery.WithEndpoint(up.Endpoint),
		bitquery.WithTimeout(up.Timeout),
		bitquery.WithQuoteMint(up.QuoteMint),
		bitquery.WithPageSize(up.PageSize),
		bitquery.WithMaxPages(up.MaxPages),
		bitquery.WithHistoryDays(up.HistoryDays),
		bitquery.WithRateLimit(up.RateLimit, up.Burst),
	)

	freshness := orchestrator.DefaultFreshness
	if cfg.Analysis.FreshnessWindow > 0 {
		freshness = orchestrator.Freshness{Window: cfg.Analysis.FreshnessWindow}
	}

	return orchestrator.New(orchestrator.Options{
		Store: store,
		Fetcher: fetcher.New(client, fetcher.Options{
			RequireOnCurve: cfg.Analysis.RequireOnCurve,
			Logger:         log,
		}),
		Classifier:     clf,
		Freshness:      freshness,
		Timeout:        cfg.Analysis.Timeout,
		WriteTimeout:   cfg.Analysis.WriteTimeout,
		RecentLimit:    cfg.Analysis.RecentLimit,
		RequireOnCurve: cfg.Analysis.RequireOnCurve,
		Logger:         log,
		Metrics:        metrics,
	}), nil
}
