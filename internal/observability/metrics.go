// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carter293/hasItPumped/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hasitpumped"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Analysis metrics
	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  *prometheus.HistogramVec
	VerdictsTotal     *prometheus.CounterVec
	VerdictConfidence prometheus.Histogram

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Upstream metrics
	UpstreamFetches *prometheus.CounterVec
	UpstreamLatency prometheus.Histogram
	FetchedDays     prometheus.Histogram

	// Store metrics
	StoreErrors *prometheus.CounterVec

	// Health metrics
	LastSuccessfulAnalysis prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Total number of analyses by outcome",
		}, []string{"outcome"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis duration in seconds by data source",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		VerdictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "verdicts_total",
			Help:      "Total number of verdicts by class",
		}, []string{"class"}),
		VerdictConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "verdict_confidence",
			Help:      "Confidence of issued verdicts",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss, stale, short, error)",
		}, []string{"result"}),

		UpstreamFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetches_total",
			Help:      "Upstream fetches by outcome",
		}, []string{"outcome"}),
		UpstreamLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_latency_seconds",
			Help:      "Upstream fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		FetchedDays: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetched_days",
			Help:      "Number of daily bars per successful fetch",
			Buckets:   []float64{3, 7, 14, 30, 60, 120, 240, 365},
		}),

		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Store failures by operation",
		}, []string{"operation"}),

		LastSuccessfulAnalysis: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_analysis_timestamp",
			Help:      "Unix timestamp of last successful analysis",
		}),
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Outcome maps an analysis error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, domain.ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream"
	case errors.Is(err, domain.ErrInvalidFeatures):
		return "invalid_features"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	default:
		return "error"
	}
}

// RecordAnalysis records one finished analysis.
func (m *Metrics) RecordAnalysis(err error, source string, seconds float64, unix int64) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(Outcome(err)).Inc()
	if err == nil {
		m.AnalysisDuration.WithLabelValues(source).Observe(seconds)
		m.LastSuccessfulAnalysis.Set(float64(unix))
	}
}

// RecordVerdict records an issued verdict.
func (m *Metrics) RecordVerdict(v domain.Verdict) {
	if m == nil {
		return
	}
	class := "post_peak"
	if v.IsPrePeak {
		class = "pre_peak"
	}
	m.VerdictsTotal.WithLabelValues(class).Inc()
	m.VerdictConfidence.Observe(v.Confidence)
}

// RecordCacheLookup records a cache lookup result.
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordFetch records an upstream fetch.
func (m *Metrics) RecordFetch(err error, seconds float64, days int) {
	if m == nil {
		return
	}
	m.UpstreamFetches.WithLabelValues(Outcome(err)).Inc()
	m.UpstreamLatency.Observe(seconds)
	if err == nil {
		m.FetchedDays.Observe(float64(days))
	}
}

// RecordStoreError records a store failure.
func (m *Metrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}
