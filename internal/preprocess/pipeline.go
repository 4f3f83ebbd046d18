package preprocess

import (
	"fmt"
	"strconv"

	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/internal"
)

// Normalization selects the between-sample normalisation step
type Normalization string

const (
	NormalizeNone       Normalization = "none"
	NormalizePercentile Normalization = "percentile"
	NormalizeStandard   Normalization = "standard"
)

// Options controls which cleaning steps Run applies
type Options struct {
	Exclude        []string      `json:"exclude" yaml:"exclude"`
	PurgeControl   bool          `json:"purge_control" yaml:"purge_control"`
	PurgeIsotopes  bool          `json:"purge_isotopes" yaml:"purge_isotopes"`
	MaxNAFraction  float64       `json:"max_na_fraction" yaml:"max_na_fraction"`
	SubstituteNA   bool          `json:"substitute_na" yaml:"substitute_na"`
	LogScale       bool          `json:"log_scale" yaml:"log_scale"`
	Normalization  Normalization `json:"normalization" yaml:"normalization"`
	Quantile       float64       `json:"quantile" yaml:"quantile"`
	StandardDigits int           `json:"standard_digits" yaml:"standard_digits"`
	MassNormalize  bool          `json:"mass_normalize" yaml:"mass_normalize"`
	ZScore         bool          `json:"z_score" yaml:"z_score"`
}

// DefaultOptions mirrors the usual lipidomics cleaning sequence
func DefaultOptions() Options {
	return Options{
		PurgeControl:   true,
		PurgeIsotopes:  true,
		MaxNAFraction:  1,
		SubstituteNA:   true,
		LogScale:       true,
		Normalization:  NormalizePercentile,
		Quantile:       0.75,
		StandardDigits: 5,
	}
}

// Run applies the enabled steps in a fixed order: exclusion, blank purge, isotope purge,
// NA filtering and filling, log scaling, normalisation, mass correction, z-scoring.
// meta supplies tissue masses for mass normalisation and may be nil otherwise.
func Run(m *PeakMatrix, opts Options, meta map[string]SampleMetadata, logger *internal.Logger) (*PeakMatrix, ColumnGroups, error) {
	logger = logger.OrDefault().With("preprocess")
	if err := m.Validate(); err != nil {
		return nil, ColumnGroups{}, err
	}

	out := m
	if len(opts.Exclude) > 0 {
		out = ExcludeSamples(out, opts.Exclude)
		logger.Debug("excluded samples, %d remain", len(out.Samples))
	}
	groups := DivideColumns(out.Samples)

	if opts.PurgeControl {
		out = PurgeControl(out, groups)
	}
	if opts.PurgeIsotopes {
		purged, err := PurgeIsotopes(out, groups)
		if err != nil {
			return nil, groups, err
		}
		logger.Debug("isotope purge kept %d of %d peaks", purged.PeakCount(), out.PeakCount())
		out = purged
	}
	if opts.MaxNAFraction < 1 {
		before := out.PeakCount()
		out = RemoveNAPeaks(out, groups, opts.MaxNAFraction)
		logger.Debug("dropped %d peaks above %.2f missing", before-out.PeakCount(), opts.MaxNAFraction)
	}
	if opts.SubstituteNA {
		out = SubstituteNA(out, groups)
	}
	if opts.LogScale {
		out = LogScale(out)
	}

	switch opts.Normalization {
	case "", NormalizeNone:
	case NormalizePercentile:
		normalized, err := PercentileNormalize(out, opts.Quantile)
		if err != nil {
			return nil, groups, err
		}
		out = normalized
	case NormalizeStandard:
		normalized, err := StandardNormalize(out, DefaultStandards, opts.StandardDigits)
		if err != nil {
			return nil, groups, err
		}
		out = normalized
	default:
		return nil, groups, fmt.Errorf("unknown normalization %q", opts.Normalization)
	}

	if opts.MassNormalize {
		masses := make(map[string]float64)
		for _, sample := range out.Samples {
			rec, ok := LookupMetadata(meta, sample)
			if !ok {
				continue
			}
			if v, err := strconv.ParseFloat(rec.Mass, 64); err == nil {
				masses[sample] = v
			}
		}
		logger.Debug("mass known for %d of %d samples", len(masses), len(out.Samples))
		out = MassNormalize(out, masses)
	}
	if opts.ZScore {
		out = ZScore(out)
	}

	if out == m {
		out = m.Clone()
	}
	logger.Info("preprocessed %d peaks x %d samples", out.PeakCount(), len(out.Samples))
	return out, groups, nil
}

// NormalForm builds the analysis-ready table from a preprocessed matrix: one row per study
// sample (QC injections excluded), a "tissue" column matched against tissues and an "age"
// column looked up in meta. Samples without a match get a missing cell.
func NormalForm(m *PeakMatrix, groups ColumnGroups, meta map[string]SampleMetadata, tissues []string) (*dataset.Dataset, error) {
	qc := make(map[string]bool, len(groups.QC))
	for _, s := range groups.QC {
		qc[s] = true
	}
	var samples []string
	for _, s := range groups.StudySamples {
		if !qc[s] {
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		return nil, core.NewInvalidSpecError("no study samples left after preprocessing")
	}

	ages := make([]string, len(samples))
	for i, s := range samples {
		if rec, ok := LookupMetadata(meta, s); ok {
			ages[i] = rec.Age
		}
	}
	return m.ToDataset(samples,
		MetaColumn{Name: "tissue", Values: ExtractLabels(samples, tissues)},
		MetaColumn{Name: "age", Values: ages},
	)
}
