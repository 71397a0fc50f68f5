// Package orchestrator runs token analyses.
// It coordinates: validation → cache lookup → fetch → persist → features → classification
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/features"
	"github.com/carter293/hasItPumped/internal/observability"
	"github.com/carter293/hasItPumped/internal/solana"
	"github.com/carter293/hasItPumped/internal/storage"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultRecentLimit  = 10
)

// Fetcher assembles the daily series of a token from the upstream source.
type Fetcher interface {
	Fetch(ctx context.Context, tokenID string) (domain.Series, error)
}

// Predictor classifies a feature vector.
type Predictor interface {
	Predict(x []float64) (domain.Verdict, error)
}

// Orchestrator coordinates analyses over a store, a fetcher and a classifier.
// It is safe for concurrent use.
type Orchestrator struct {
	store      storage.SeriesStore
	fetcher    Fetcher
	classifier Predictor

	freshness      Freshness
	timeout        time.Duration
	writeTimeout   time.Duration
	recentLimit    int
	requireOnCurve bool

	now     func() time.Time
	newID   func() string
	log     logrus.FieldLogger
	metrics *observability.Metrics
}

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	Store      storage.SeriesStore
	Fetcher    Fetcher
	Classifier Predictor

	// Policy
	Freshness      Freshness     // zero value uses DefaultFreshness
	Timeout        time.Duration // overall deadline per analysis
	WriteTimeout   time.Duration // deadline of each best-effort store write
	RecentLimit    int           // summaries returned by Stats
	RequireOnCurve bool          // reject off-curve mint addresses

	// Optional
	Clock     func() time.Time
	RequestID func() string
	Logger    logrus.FieldLogger
	Metrics   *observability.Metrics
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:          opts.Store,
		fetcher:        opts.Fetcher,
		classifier:     opts.Classifier,
		freshness:      opts.Freshness,
		timeout:        opts.Timeout,
		writeTimeout:   opts.WriteTimeout,
		recentLimit:    opts.RecentLimit,
		requireOnCurve: opts.RequireOnCurve,
		now:            opts.Clock,
		newID:          opts.RequestID,
		log:            opts.Logger,
		metrics:        opts.Metrics,
	}
	if o.freshness == (Freshness{}) {
		o.freshness = DefaultFreshness
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.writeTimeout <= 0 {
		o.writeTimeout = DefaultWriteTimeout
	}
	if o.recentLimit <= 0 {
		o.recentLimit = DefaultRecentLimit
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	o.log = o.log.WithField("component", "orchestrator")
	return o
}

// Analyze returns the verdict for a token and the series it was computed on.
//
// Errors wrap one of the domain sentinels: ErrInvalidIdentifier (no store or
// fetch call made), ErrTokenNotFound, ErrInsufficientData, ErrUpstream,
// ErrTimeout or ErrInvalidFeatures. Store failures never fail an analysis.
func (o *Orchestrator) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	started := time.Now()
	req = req.Normalize()
	requestID := o.newID()
	log := o.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"mint":       req.TokenID,
	})

	result, err := o.analyze(ctx, req.TokenID, requestID, log)

	source := ""
	if result != nil {
		source = result.Source
	}
	o.metrics.RecordAnalysis(err, source, time.Since(started).Seconds(), o.now().Unix())

	if err != nil {
		entry := log.WithError(err).WithField("outcome", observability.Outcome(err))
		if errors.Is(err, domain.ErrInvalidFeatures) {
			entry.Error("analysis failed")
		} else {
			entry.Info("analysis failed")
		}
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"source":      result.Source,
		"days":        result.DaysOfData,
		"is_pre_peak": result.IsPrePeak,
		"confidence":  result.Confidence,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("analysis complete")
	return result, nil
}

func (o *Orchestrator) analyze(ctx context.Context, mint, requestID string, log logrus.FieldLogger) (*domain.AnalysisResult, error) {
	if err := solana.ValidateMint(mint, o.requireOnCurve); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	series, source, err := o.loadSeries(ctx, mint, log)
	if err != nil {
		return nil, err
	}

	verdict, err := o.classify(series)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordVerdict(verdict)

	o.saveVerdict(ctx, mint, verdict, log)

	return &domain.AnalysisResult{
		RequestID:  requestID,
		Mint:       mint,
		Series:     series.Descending(),
		IsPrePeak:  verdict.IsPrePeak,
		Confidence: verdict.Confidence,
		DaysOfData: len(series),
		Source:     source,
		AnalyzedAt: o.now().UTC(),
	}, nil
}

// loadSeries serves a fresh cached series or fetches and persists a new one.
func (o *Orchestrator) loadSeries(ctx context.Context, mint string, log logrus.FieldLogger) (domain.Series, string, error) {
	rec, err := o.store.Get(ctx, mint)
	switch {
	case err == nil:
		switch verr := rec.Series.Ascending().Validate(); {
		case verr != nil:
			o.metrics.RecordCacheLookup("error")
			o.metrics.RecordStoreError("get")
			log.WithError(verr).WithField("stage", "cache").Warn("cached series is corrupt, fetching upstream")
		case len(rec.Series) < domain.MinDays:
			o.metrics.RecordCacheLookup("short")
		case !o.freshness.Fresh(rec.LastUpdated, o.now()):
			o.metrics.RecordCacheLookup("stale")
		default:
			o.metrics.RecordCacheLookup("hit")
			log.WithField("stage", "cache").Debug("serving cached series")
			return rec.Series.Ascending(), domain.SourceCache, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		o.metrics.RecordCacheLookup("miss")
	default:
		// A broken cache is treated as empty.
		o.metrics.RecordCacheLookup("error")
		o.metrics.RecordStoreError("get")
		log.WithError(err).WithField("stage", "cache").Warn("store read failed, fetching upstream")
	}

	series, err := o.fetch(ctx, mint)
	if err != nil {
		return nil, "", err
	}

	o.persist(ctx, mint, series, log)
	return series, domain.SourceUpstream, nil
}

func (o *Orchestrator) fetch(ctx context.Context, mint string) (domain.Series, error) {
	started := time.Now()
	series, err := o.fetcher.Fetch(ctx, mint)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		err = fmt.Errorf("%w after %s: %v", domain.ErrTimeout, o.timeout, err)
	}
	o.metrics.RecordFetch(err, time.Since(started).Seconds(), len(series))
	if err != nil {
		return nil, err
	}
	return series.Ascending(), nil
}

// persist upserts a fetched series. Failures are logged and swallowed.
func (o *Orchestrator) persist(ctx context.Context, mint string, series domain.Series, log logrus.FieldLogger) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.writeTimeout)
	defer cancel()

	if err := o.store.Upsert(wctx, mint, series, o.now().UTC()); err != nil {
		o.metrics.RecordStoreError("upsert")
		log.WithError(err).WithField("stage", "persist").Warn("store write failed")
	}
}

// saveVerdict records the verdict on the cached record. Best effort.
func (o *Orchestrator) saveVerdict(ctx context.Context, mint string, verdict domain.Verdict, log logrus.FieldLogger) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.writeTimeout)
	defer cancel()

	if err := o.store.SaveVerdict(wctx, mint, verdict); err != nil {
		o.metrics.RecordStoreError("save_verdict")
		log.WithError(err).WithField("stage", "save_verdict").Warn("store write failed")
	}
}

func (o *Orchestrator) classify(series domain.Series) (domain.Verdict, error) {
	if len(series) < domain.MinDays {
		return domain.Verdict{}, fmt.Errorf("%w: %d days available, %d required",
			domain.ErrInsufficientData, len(series), domain.MinDays)
	}

	vector, err := features.Extract(series)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrInvalidFeatures, err)
	}

	verdict, err := o.classifier.Predict(vector)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("classify: %w", err)
	}
	return verdict, nil
}
