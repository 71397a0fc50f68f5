package orchestrator

import (
	"context"
	"fmt"

	"github.com/carter293/hasItPumped/internal/domain"
)

// Stats aggregates verdicts over every stored token.
// Tokens without a verdict count towards Total only.
func (o *Orchestrator) Stats(ctx context.Context) (*domain.Stats, error) {
	summaries, err := o.store.List(ctx)
	if err != nil {
		o.metrics.RecordStoreError("list")
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	stats := &domain.Stats{
		Total:  len(summaries),
		Recent: []*domain.TokenSummary{},
	}
	for _, s := range summaries {
		if s.Verdict == nil {
			continue
		}
		if s.Verdict.IsPrePeak {
			stats.PrePeakCount++
		} else {
			stats.PostPeakCount++
		}
	}

	n := o.recentLimit
	if n > len(summaries) {
		n = len(summaries)
	}
	stats.Recent = append(stats.Recent, summaries[:n]...)
	return stats, nil
}
