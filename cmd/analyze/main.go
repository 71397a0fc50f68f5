// Package main analyzes a batch of mints from the command line and prints
// one JSON result per line, or a CSV or Markdown report of the batch.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/carter293/hasItPumped/internal/app"
	"github.com/carter293/hasItPumped/internal/config"
	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/logging"
	"github.com/carter293/hasItPumped/internal/observability"
	"github.com/carter293/hasItPumped/internal/reporting"
)

// line is one output record. Exactly one of Result and Error is set.
type line struct {
	Mint   string                 `json:"mint_address"`
	Result *domain.AnalysisResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Kind   string                 `json:"kind,omitempty"`
}

func main() {
	configPath := flag.String("config", os.Getenv("HASITPUMPED_CONFIG"), "Path to YAML config file (optional)")
	input := flag.String("input", "", "File with one mint per line (default: positional args, or stdin when none)")
	parallel := flag.Int("parallel", 4, "Maximum concurrent analyses")
	compact := flag.Bool("compact", false, "Omit the daily series from JSON results")
	format := flag.String("format", "jsonl", "Output format: jsonl, csv or markdown")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}
	logger, err := logging.NewWithOutput(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	mints, err := readMints(*input, flag.Args())
	if err != nil {
		logger.WithError(err).Fatal("Failed to read mints")
	}
	if len(mints) == 0 {
		logger.Fatal("No mints given")
	}
	if *parallel < 1 {
		logger.Fatal("--parallel must be at least 1")
	}
	switch *format {
	case "jsonl", "csv", "markdown":
	default:
		logger.Fatalf("Unknown --format %q", *format)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := app.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer cleanup()

	orch, err := app.NewOrchestrator(cfg, store, logger, nil)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create orchestrator")
	}

	out := json.NewEncoder(os.Stdout)
	var (
		mu      sync.Mutex
		entries []reporting.Entry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for _, mint := range mints {
		g.Go(func() error {
			result, err := orch.Analyze(gctx, domain.AnalysisRequest{TokenID: mint})

			mu.Lock()
			defer mu.Unlock()
			entries = append(entries, reporting.Entry{Mint: mint, Result: result, Err: err})
			if *format != "jsonl" {
				return nil
			}

			rec := line{Mint: mint}
			if err != nil {
				rec.Error = err.Error()
				rec.Kind = observability.Outcome(err)
			} else {
				if *compact {
					result.Series = nil
				}
				rec.Result = result
			}
			return out.Encode(rec)
		})
	}
	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("Failed to write results")
	}

	report := reporting.NewReport(entries, time.Now())
	switch *format {
	case "csv":
		text, err := reporting.RenderCSV(report)
		if err != nil {
			logger.WithError(err).Fatal("Failed to render CSV")
		}
		fmt.Print(text)
	case "markdown":
		fmt.Print(reporting.RenderMarkdown(report))
	}

	logger.WithFields(logrus.Fields{
		"total":     report.Total,
		"pre_peak":  report.PrePeakCount,
		"post_peak": report.PostPeakCount,
		"failed":    report.FailureCount(),
	}).Info("Batch complete")
	if report.FailureCount() > 0 {
		cleanup()
		os.Exit(1)
	}
}

// readMints collects mints from the input file, the positional args or
// stdin, skipping blank lines and # comments.
func readMints(path string, args []string) ([]string, error) {
	if path == "" && len(args) > 0 {
		return args, nil
	}

	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var mints []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		mints = append(mints, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mints: %w", err)
	}
	return mints, nil
}
