// Package main runs the HTTP analysis service:
// config → logger → store → orchestrator → gin router
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/api"
	"github.com/carter293/hasItPumped/internal/app"
	"github.com/carter293/hasItPumped/internal/config"
	"github.com/carter293/hasItPumped/internal/logging"
	"github.com/carter293/hasItPumped/internal/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("HASITPUMPED_CONFIG"), "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}
	log := logger.WithField("service", "hasitpumped")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := app.OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	defer cleanup()

	var (
		metrics  *observability.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := observability.NewRegistry()
		metrics = observability.NewMetrics(cfg.Metrics.Namespace, reg)
		gatherer = reg
	}

	orch, err := app.NewOrchestrator(cfg, store, log, metrics)
	if err != nil {
		log.WithError(err).Fatal("Failed to create orchestrator")
	}

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.Options{
			Service:  orch,
			Logger:   log,
			Gatherer: gatherer,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Server.Addr,
			"storage": cfg.Storage.Driver,
			"model":   cfg.Model.Path,
		}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
		return
	}
	log.Info("Server stopped")
}
