package app

import (
	"context"
	"fmt"
	"time"

	"metabostat/adapters/battery"
	"metabostat/adapters/stats/anova"
	"metabostat/adapters/stats/multitest"
	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/domain/stats"
	"metabostat/internal"
	"metabostat/internal/config"
	"metabostat/internal/metrics"
	"metabostat/internal/preprocess"
	"metabostat/ports"
)

// SignificanceService runs the peak significance pipeline: load, fit every peak, correct
// for multiple testing and optionally build a permutation null.
type SignificanceService struct {
	reader  ports.DatasetReaderPort
	exports ports.ExportReaderPort
	runner  *anova.BatchRunner
	tester  *battery.PermutationTester
	metrics *metrics.Recorder
	logger  *internal.Logger
	cfg     *config.Config
}

// AnalyzeRequest selects the table and the model. Either Dataset or Path must be set;
// Dataset wins when both are.
type AnalyzeRequest struct {
	Path      string
	Dataset   *dataset.Dataset
	Variables []string
	Mode      stats.InteractionMode
	Alpha     float64 // zero means the configured alpha
}

// AnalyzeResult contains raw and corrected p-values for every term and peak
type AnalyzeResult struct {
	Fingerprint core.Hash                     `json:"dataset_fingerprint"`
	Raw         *stats.PValueTable            `json:"raw"`
	Corrected   *stats.CorrectedResult        `json:"corrected"`
	Significant map[string]map[string]float64 `json:"significant"`
	RuntimeMs   int64                         `json:"runtime_ms"`
}

// PermuteRequest describes a permutation run over a table on disk or in memory
type PermuteRequest struct {
	RunID      core.RunID
	Path       string
	Dataset    *dataset.Dataset
	Variables  []string
	Permuted   []string
	Mode       stats.InteractionMode
	Iterations int
	Seed       int64
	Timeout    time.Duration
}

// PreprocessRequest points at a raw instrument export and its metadata sheet
type PreprocessRequest struct {
	ExportPath   string
	MetadataPath string // optional
	Options      preprocess.Options
	Tissues      []string // nil means preprocess.DefaultTissues()
}

// PreprocessResult holds the cleaned matrix and the analysis-ready table built from it
type PreprocessResult struct {
	Matrix  *preprocess.PeakMatrix
	Groups  preprocess.ColumnGroups
	Dataset *dataset.Dataset
}

// NewSignificanceService wires the pipeline from configuration. recorder may be nil.
func NewSignificanceService(cfg *config.Config, reader ports.DatasetReaderPort, exports ports.ExportReaderPort,
	rngPort ports.RNGPort, recorder *metrics.Recorder, logger *internal.Logger) *SignificanceService {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logger.OrDefault()

	fitter := anova.NewFitter(anova.WithMetrics(recorder))
	runner := anova.NewBatchRunner(fitter, cfg.Runtime.Workers, logger)

	tester := battery.NewPermutationTester(runner, rngPort, logger)
	tester.SetAlpha(cfg.Analysis.Alpha)
	tester.SetMetrics(recorder)
	tester.SetProgressObserver(battery.NewLoggingProgress(logger), cfg.Permutation.ProgressEvery)

	return &SignificanceService{
		reader:  reader,
		exports: exports,
		runner:  runner,
		tester:  tester,
		metrics: recorder,
		logger:  logger.With("service"),
		cfg:     cfg,
	}
}

// SetProgressObserver replaces the logging progress observer of permutation runs
func (s *SignificanceService) SetProgressObserver(observer ports.ProgressObserver) {
	s.tester.SetProgressObserver(observer, s.cfg.Permutation.ProgressEvery)
}

// Analyze fits every peak and applies the two-stage FDR correction
func (s *SignificanceService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	startTime := time.Now()

	ds, err := s.dataset(ctx, req.Dataset, req.Path)
	if err != nil {
		return nil, err
	}
	alpha := req.Alpha
	if alpha == 0 {
		alpha = s.cfg.Analysis.Alpha
	}

	raw, err := s.runner.Run(ctx, ds, req.Variables, req.Mode)
	if err != nil {
		return nil, fmt.Errorf("anova: %w", err)
	}
	corrected, err := multitest.Correct(raw, alpha)
	if err != nil {
		return nil, fmt.Errorf("fdr correction: %w", err)
	}
	s.metrics.SetSignificant(corrected.SignificantCount())

	s.logger.Info("%d of %d term/peak pairs significant at alpha %.3g", corrected.SignificantCount(),
		len(raw.Terms)*len(raw.Peaks), alpha)

	return &AnalyzeResult{
		Fingerprint: ds.Fingerprint(),
		Raw:         raw,
		Corrected:   corrected,
		Significant: corrected.SignificantView(),
		RuntimeMs:   time.Since(startTime).Milliseconds(),
	}, nil
}

// Permute runs the permutation tester with request values falling back to configuration
func (s *SignificanceService) Permute(ctx context.Context, req PermuteRequest) (*stats.PermutationTable, error) {
	ds, err := s.dataset(ctx, req.Dataset, req.Path)
	if err != nil {
		return nil, err
	}

	permuted := req.Permuted
	if len(permuted) == 0 {
		permuted = s.cfg.Permutation.Permute
	}
	iterations := req.Iterations
	if iterations == 0 {
		iterations = s.cfg.Permutation.Iterations
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.cfg.Permutation.Timeout
	}

	table, err := s.tester.Run(ctx, battery.PermutationRequest{
		RunID:      req.RunID,
		Dataset:    ds,
		Predictors: req.Variables,
		Permuted:   permuted,
		Mode:       req.Mode,
		Iterations: iterations,
		Seed:       req.Seed,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, err
	}

	for _, term := range table.Terms {
		s.logger.Info("run %s term %s: false positive rate %.4f, any-hit rate %.3f", table.RunID, term,
			table.FalsePositiveRate(term), table.AnyHitRate(term))
	}
	return table, nil
}

// Preprocess cleans a raw export and reshapes it into the analysis-ready table
func (s *SignificanceService) Preprocess(ctx context.Context, req PreprocessRequest) (*PreprocessResult, error) {
	if s.exports == nil {
		return nil, fmt.Errorf("no export reader configured")
	}
	m, err := s.exports.ReadPeakMatrix(ctx, req.ExportPath)
	if err != nil {
		return nil, err
	}

	var meta map[string]preprocess.SampleMetadata
	if req.MetadataPath != "" {
		meta, err = s.exports.ReadMetadata(ctx, req.MetadataPath)
		if err != nil {
			return nil, err
		}
	}

	cleaned, groups, err := preprocess.Run(m, req.Options, meta, s.logger)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", req.ExportPath, err)
	}

	tissues := req.Tissues
	if tissues == nil {
		tissues = preprocess.DefaultTissues()
	}
	ds, err := preprocess.NormalForm(cleaned, groups, meta, tissues)
	if err != nil {
		return nil, err
	}
	return &PreprocessResult{Matrix: cleaned, Groups: groups, Dataset: ds}, nil
}

func (s *SignificanceService) dataset(ctx context.Context, ds *dataset.Dataset, path string) (*dataset.Dataset, error) {
	if ds != nil {
		return ds, nil
	}
	if path == "" {
		return nil, core.NewInvalidSpecError("no dataset or table path given")
	}
	if s.reader == nil {
		return nil, fmt.Errorf("no dataset reader configured")
	}
	return s.reader.LoadDataset(ctx, path)
}
