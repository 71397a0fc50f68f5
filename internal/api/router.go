// Package api exposes the analysis service over HTTP.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/observability"
)

// Service is the analysis surface served by the router.
// *orchestrator.Orchestrator implements it.
type Service interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
	Lookup(ctx context.Context, mint string) (*domain.AnalysisResult, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

// Options for creating the router.
type Options struct {
	Service Service
	Logger  logrus.FieldLogger

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "api")

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), cors())

	h := &handler{svc: opts.Service, log: log}
	r.GET("/healthcheck", h.healthcheck)
	r.POST("/analyze_token", h.analyzeToken)
	r.GET("/token/:mint", h.getToken)
	r.GET("/stats", h.stats)

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(observability.Handler(opts.Gatherer)))
	}
	return r
}
