package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/solana"
	"github.com/carter293/hasItPumped/internal/storage"
)

// Lookup returns the stored analysis of a token without refetching.
// A cached token without a verdict is analyzed. A token that was never
// cached yields ErrTokenNotFound. A failing store or a corrupt stored
// series falls back to Analyze.
func (o *Orchestrator) Lookup(ctx context.Context, mint string) (*domain.AnalysisResult, error) {
	req := domain.AnalysisRequest{TokenID: mint}.Normalize()
	if err := solana.ValidateMint(req.TokenID, o.requireOnCurve); err != nil {
		return nil, err
	}

	rec, err := o.store.Get(ctx, req.TokenID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: %s has not been analyzed", domain.ErrTokenNotFound, req.TokenID)
	case err != nil:
		o.metrics.RecordStoreError("get")
		o.log.WithError(err).WithField("mint", req.TokenID).Warn("store read failed, analyzing")
		return o.Analyze(ctx, req)
	case rec.Verdict == nil || len(rec.Series) < domain.MinDays:
		return o.Analyze(ctx, req)
	}
	if verr := rec.Series.Ascending().Validate(); verr != nil {
		// Analyze reads the record again and records the failed lookup.
		o.log.WithError(verr).WithField("mint", req.TokenID).Warn("stored series is corrupt, analyzing")
		return o.Analyze(ctx, req)
	}

	requestID := o.newID()
	o.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"mint":       req.TokenID,
	}).Debug("served stored analysis")

	return &domain.AnalysisResult{
		RequestID:  requestID,
		Mint:       rec.Mint,
		Series:     rec.Series.Descending(),
		IsPrePeak:  rec.Verdict.IsPrePeak,
		Confidence: rec.Verdict.Confidence,
		DaysOfData: len(rec.Series),
		Source:     domain.SourceCache,
		AnalyzedAt: rec.LastUpdated,
	}, nil
}
