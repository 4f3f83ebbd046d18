package battery

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"metabostat/adapters/stats/anova"
	"metabostat/adapters/stats/multitest"
	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/domain/stats"
	"metabostat/internal"
	"metabostat/internal/metrics"
	"metabostat/ports"
)

const (
	// DefaultIterations is used when a request leaves Iterations at zero
	DefaultIterations = 1000
	// DefaultProgressEvery is the iteration interval between progress notices
	DefaultProgressEvery = 100

	rngStreamName = "anova-permutation"
)

// PermutationRequest describes one permutation run
type PermutationRequest struct {
	RunID      core.RunID
	Dataset    *dataset.Dataset
	Predictors []string
	Permuted   []string // subset of Predictors whose labels are shuffled every round
	Mode       stats.InteractionMode
	Iterations int
	Seed       int64
	Timeout    time.Duration // checked between rounds only; zero disables it
}

// PermutationTester builds an empirical null distribution of significant peak sets by
// shuffling predictor labels and re-running the full ANOVA + FDR chain every round.
type PermutationTester struct {
	runner        *anova.BatchRunner
	rngPort       ports.RNGPort
	progress      ports.ProgressObserver
	progressEvery int
	alpha         float64
	metrics       *metrics.Recorder
	logger        *internal.Logger
}

// NewPermutationTester creates a tester with default settings
func NewPermutationTester(runner *anova.BatchRunner, rngPort ports.RNGPort, logger *internal.Logger) *PermutationTester {
	return &PermutationTester{
		runner:        runner,
		rngPort:       rngPort,
		progressEvery: DefaultProgressEvery,
		alpha:         multitest.DefaultAlpha,
		logger:        logger.OrDefault().With("permutation"),
	}
}

// SetProgressObserver installs an observer notified every `every` rounds and after the last one
func (pt *PermutationTester) SetProgressObserver(observer ports.ProgressObserver, every int) {
	if every <= 0 {
		every = DefaultProgressEvery
	}
	pt.progress = observer
	pt.progressEvery = every
}

// SetAlpha overrides the FDR threshold used in each round
func (pt *PermutationTester) SetAlpha(alpha float64) {
	pt.alpha = alpha
}

// SetMetrics records round outcomes and durations on r
func (pt *PermutationTester) SetMetrics(r *metrics.Recorder) {
	pt.metrics = r
}

// Run executes the permutation test. The caller's dataset is never modified: shuffles
// happen on a private working copy. Any failing round aborts the whole run with a
// *core.PermutationRoundError; no partial table is returned.
func (pt *PermutationTester) Run(ctx context.Context, req PermutationRequest) (*stats.PermutationTable, error) {
	iterations, err := pt.validate(req)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if req.Timeout > 0 {
		deadline = time.Now().Add(req.Timeout)
	}

	// the unpermuted pass fixes the term schema every round must reproduce
	baseline, err := pt.runner.Run(ctx, req.Dataset, req.Predictors, req.Mode)
	if err != nil {
		return nil, fmt.Errorf("baseline pass: %w", err)
	}

	rng, err := pt.rngPort.SeededStream(ctx, rngStreamName, req.Seed)
	if err != nil {
		return nil, fmt.Errorf("seed permutation stream: %w", err)
	}

	runID := req.RunID
	if runID.IsEmpty() {
		runID = core.NewRunID()
	}

	table := &stats.PermutationTable{
		RunID:       runID,
		Seed:        req.Seed,
		Mode:        req.Mode,
		Permuted:    append([]string(nil), req.Permuted...),
		Terms:       baseline.Terms,
		Peaks:       baseline.Peaks,
		Records:     make([]stats.PermutationRecord, 0, iterations),
		Fingerprint: req.Dataset.Fingerprint(),
		CreatedAt:   core.Now(),
	}

	pt.logger.Info("run %s: %d iterations, permuting %v (%s, seed %d)", runID, iterations, req.Permuted, req.Mode, req.Seed)

	working := req.Dataset.Clone()
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &core.PermutationRoundError{Iteration: i, Err: err}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, &core.PermutationRoundError{Iteration: i, Err: context.DeadlineExceeded}
		}

		start := time.Now()
		record, err := pt.round(ctx, working, rng, req, table.Terms, i)
		pt.metrics.ObserveRound(time.Since(start), err)
		if err != nil {
			pt.logger.Warn("run %s aborted at iteration %d: %v", runID, i, err)
			return nil, &core.PermutationRoundError{Iteration: i, Err: err}
		}
		table.Records = append(table.Records, record)

		completed := i + 1
		if pt.progress != nil && (completed%pt.progressEvery == 0 || completed == iterations) {
			pt.progress.OnProgress(ctx, completed, iterations)
		}
	}

	return table, nil
}

// round shuffles the permuted columns of working in place, then refits and corrects
func (pt *PermutationTester) round(ctx context.Context, working *dataset.Dataset, rng *rand.Rand, req PermutationRequest, terms []string, iteration int) (stats.PermutationRecord, error) {
	for _, name := range req.Permuted {
		col, err := working.Column(name)
		if err != nil {
			return stats.PermutationRecord{}, err
		}
		shuffleColumn(col, rng)
	}

	pvals, err := pt.runner.RunWithTerms(ctx, working, req.Predictors, req.Mode, terms)
	if err != nil {
		return stats.PermutationRecord{}, err
	}
	corrected, err := multitest.Correct(pvals, pt.alpha)
	if err != nil {
		return stats.PermutationRecord{}, err
	}
	pt.metrics.SetSignificant(corrected.SignificantCount())

	record := stats.PermutationRecord{
		Iteration:   iteration,
		Significant: make(map[string][]string, len(terms)),
	}
	for _, term := range terms {
		record.Significant[term] = corrected.SignificantPeaks(term)
	}
	return record, nil
}

func (pt *PermutationTester) validate(req PermutationRequest) (int, error) {
	if req.Dataset == nil {
		return 0, core.NewInvalidSpecError("no dataset given")
	}
	if err := req.Dataset.Validate(); err != nil {
		return 0, err
	}
	if err := req.Dataset.ValidatePredictors(req.Predictors); err != nil {
		return 0, err
	}
	if !req.Mode.Valid() {
		return 0, core.NewInvalidModeError(req.Mode.String())
	}
	if len(req.Permuted) == 0 {
		return 0, core.NewInvalidSpecError("no columns to permute")
	}

	predictors := make(map[string]bool, len(req.Predictors))
	for _, p := range req.Predictors {
		predictors[p] = true
	}
	seen := make(map[string]bool, len(req.Permuted))
	for _, name := range req.Permuted {
		if !predictors[name] {
			return 0, core.NewInvalidSpecError(fmt.Sprintf("permuted column %q is not a predictor", name))
		}
		if seen[name] {
			return 0, core.NewInvalidSpecError(fmt.Sprintf("permuted column %q listed twice", name))
		}
		seen[name] = true
	}

	switch {
	case req.Iterations < 0:
		return 0, core.NewInvalidSpecError(fmt.Sprintf("negative iteration count %d", req.Iterations))
	case req.Iterations == 0:
		return DefaultIterations, nil
	}
	return req.Iterations, nil
}

// shuffleColumn applies one Fisher-Yates permutation to the cells of col
func shuffleColumn(col *dataset.Column, rng *rand.Rand) {
	n := col.Len()
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		if col.Kind == dataset.KindCategorical {
			col.Labels[i], col.Labels[j] = col.Labels[j], col.Labels[i]
		} else {
			col.Values[i], col.Values[j] = col.Values[j], col.Values[i]
		}
	}
}
