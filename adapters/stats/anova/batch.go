package anova

import (
	"context"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"metabostat/adapters/stats/formula"
	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/domain/stats"
	"metabostat/internal"
)

// BatchRunner fits one model per peak column and assembles the term x peak p-value table.
// Peak fits only read the dataset, so they run on a bounded worker pool.
type BatchRunner struct {
	fitter  *Fitter
	workers int
	logger  *internal.Logger
}

// NewBatchRunner creates a batch runner; workers <= 0 means one per CPU
func NewBatchRunner(fitter *Fitter, workers int, logger *internal.Logger) *BatchRunner {
	if fitter == nil {
		fitter = NewFitter()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &BatchRunner{
		fitter:  fitter,
		workers: workers,
		logger:  logger.OrDefault().With("anova"),
	}
}

// Run fits every peak (all columns but the trailing metadata columns) against predictors
func (b *BatchRunner) Run(ctx context.Context, ds *dataset.Dataset, predictors []string, mode stats.InteractionMode) (*stats.PValueTable, error) {
	return b.RunWithTerms(ctx, ds, predictors, mode, nil)
}

// RunWithTerms is Run with an externally fixed term schema. When expected is nil the
// first peak's term set becomes the schema.
func (b *BatchRunner) RunWithTerms(ctx context.Context, ds *dataset.Dataset, predictors []string, mode stats.InteractionMode, expected []string) (*stats.PValueTable, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := ds.ValidatePredictors(predictors); err != nil {
		return nil, err
	}

	peaks := ds.PeakNames()
	specs := make([]stats.FormulaSpec, len(peaks))
	for j, peak := range peaks {
		spec, err := formula.Build(peak, predictors, mode)
		if err != nil {
			return nil, err
		}
		specs[j] = spec
	}

	results := make([]stats.ModelResult, len(peaks))
	errs := make([]error, len(peaks))

	// peaks after the lowest failed index are skipped; earlier ones always run, so the
	// reported error is the failing peak with the lowest column index regardless of scheduling
	var firstFailed atomic.Int64
	firstFailed.Store(int64(len(peaks)))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for j := range peaks {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if int64(j) > firstFailed.Load() {
				return nil
			}
			res, err := b.fitter.Fit(ds, peaks[j], specs[j])
			if err != nil {
				errs[j] = err
				for {
					cur := firstFailed.Load()
					if int64(j) >= cur || firstFailed.CompareAndSwap(cur, int64(j)) {
						break
					}
				}
				return nil
			}
			results[j] = res
			return nil
		})
	}
	waitErr := g.Wait()

	for j, err := range errs {
		if err != nil {
			b.logger.Debug("peak %s failed: %v", peaks[j], err)
			return nil, err
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}

	terms := expected
	if terms == nil && len(results) > 0 {
		terms = results[0].Terms
	}

	table := stats.NewPValueTable(terms, peaks)
	for j, res := range results {
		if !slices.Equal(res.Terms, terms) {
			return nil, &core.InconsistentTermsError{
				Peak:     res.Peak,
				Expected: terms,
				Got:      res.Terms,
			}
		}
		table.SetColumn(j, res)
	}

	b.logger.Trace("fitted %d peaks x %d terms (%s)", len(peaks), len(terms), mode)
	return table, nil
}
