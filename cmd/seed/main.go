// Package main imports an ohlcv_data.json export into the configured store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/app"
	"github.com/carter293/hasItPumped/internal/config"
	"github.com/carter293/hasItPumped/internal/ingestion"
	"github.com/carter293/hasItPumped/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("HASITPUMPED_CONFIG"), "Path to YAML config file (optional)")
	file := flag.String("file", "ohlcv_data.json", "JSON array of daily OHLCV rows")
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

	if cfg.Storage.Driver == config.DriverMemory {
		logger.Fatal("Seeding the in-memory store has no effect; set storage.driver")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*file)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open seed file")
	}
	defer f.Close()

	rows, err := ingestion.ReadRows(f)
	if err != nil {
		logger.WithError(err).Fatal("Failed to read seed file")
	}

	store, cleanup, err := app.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer cleanup()

	report, err := ingestion.NewImporter(ingestion.ImporterOptions{
		Store:  store,
		Logger: logger,
	}).Import(ctx, rows)
	if err != nil {
		logger.WithError(err).Error("Import interrupted")
	}
	if report.Failed > 0 || err != nil {
		cleanup()
		os.Exit(1)
	}
}
