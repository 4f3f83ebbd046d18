package anova

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"metabostat/adapters/stats/formula"
	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/domain/stats"
	"metabostat/internal/metrics"
	"metabostat/internal/testkit"
)

// twoGroupDataset has one peak with group means 2 and 5 and unit within-group variance
func twoGroupDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New([]string{"s1", "s2", "s3", "s4", "s5", "s6"})
	require.NoError(t, ds.AddNumeric("peak", []float64{1, 2, 3, 4, 5, 6}))
	require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "liver", "liver", "muscle", "muscle", "muscle"}))
	require.NoError(t, ds.AddCategorical("age", []string{"old", "young", "old", "young", "old", "young"}))
	return ds
}

func build(t *testing.T, peak string, predictors []string, mode stats.InteractionMode) stats.FormulaSpec {
	t.Helper()
	spec, err := formula.Build(peak, predictors, mode)
	require.NoError(t, err)
	return spec
}

func TestFSurvival_MatchesDistribution(t *testing.T) {
	cases := []struct{ x, d1, d2 float64 }{
		{0.5, 1, 4},
		{3.2, 2, 10},
		{13.5, 1, 4},
		{1.0, 3, 20},
		{40, 4, 12},
	}
	for _, c := range cases {
		want := 1 - distuv.F{D1: c.d1, D2: c.d2}.CDF(c.x)
		assert.InDelta(t, want, fSurvival(c.x, c.d1, c.d2), 1e-10, "F(%v,%v) at %v", c.d1, c.d2, c.x)
	}
	assert.Equal(t, 1.0, fSurvival(0, 1, 4))
	assert.Equal(t, 0.0, fSurvival(math.Inf(1), 1, 4))
}

func TestFit_OneWayMatchesHandComputation(t *testing.T) {
	ds := twoGroupDataset(t)
	spec := build(t, "peak", []string{"tissue"}, stats.InteractionNone)

	res, err := NewFitter().Fit(ds, "peak", spec)
	require.NoError(t, err)

	// SS_between = 13.5 on 1 df, SS_within = 4 on 4 df
	assert.Equal(t, []string{"tissue"}, res.Terms)
	assert.Equal(t, 4, res.ResidualDF)
	assert.Equal(t, 1, res.DF["tissue"])
	assert.Equal(t, 6, res.SampleSize)
	assert.InDelta(t, 13.5, res.FStats["tissue"], 1e-9)

	want := 1 - distuv.F{D1: 1, D2: 4}.CDF(13.5)
	assert.InDelta(t, want, res.PValues["tissue"], 1e-10)
}

func TestFit_ResidualRowExcluded(t *testing.T) {
	ds := twoGroupDataset(t)
	spec := build(t, "peak", []string{"tissue", "age"}, stats.InteractionNone)

	res, err := NewFitter().Fit(ds, "peak", spec)
	require.NoError(t, err)

	assert.Equal(t, spec.TermNames(), res.Terms)
	assert.Len(t, res.PValues, 2)
	assert.NotContains(t, res.PValues, "Residual")
	for _, p := range res.PValues {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestFit_SequentialSumsOfSquaresPartitionTotal(t *testing.T) {
	config := testkit.DefaultMetabolomeConfig()
	config.PeakCount = 1
	config.Replicates = 3
	config.Effects = []testkit.PeakEffect{{Peak: 0, Tissue: "muscle", Shift: 2}}
	ds, err := testkit.NewMetabolomeGenerator(config).Generate()
	require.NoError(t, err)

	spec := build(t, "peak_000", []string{"tissue", "age"}, stats.InteractionPairwise)
	d, err := buildDesign(ds, spec)
	require.NoError(t, err)

	effects, err := NewFitter().orthogonalEffects("peak_000", d)
	require.NoError(t, err)

	// Q is orthogonal, so the squared effects must add up to y'y
	total, yy := 0.0, 0.0
	for _, e := range effects {
		total += e * e
	}
	for _, v := range d.y {
		yy += v * v
	}
	assert.InDelta(t, yy, total, 1e-8*yy)
	assert.Equal(t, [][2]int{{1, 2}, {2, 3}, {3, 4}}, d.termCols)
}

func TestFit_Errors(t *testing.T) {
	t.Run("confounded predictors are rank deficient", func(t *testing.T) {
		ds := dataset.New([]string{"a", "b", "c", "d", "e", "f"})
		require.NoError(t, ds.AddNumeric("peak", []float64{1, 2, 3, 4, 5, 7}))
		require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "liver", "liver", "muscle", "muscle", "muscle"}))
		require.NoError(t, ds.AddCategorical("age", []string{"old", "old", "old", "young", "young", "young"}))

		_, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"tissue", "age"}, stats.InteractionNone))
		assert.ErrorIs(t, err, core.ErrRankDeficient)
		assert.ErrorIs(t, err, core.ErrModelFit)

		var fitErr *core.ModelFitError
		require.ErrorAs(t, err, &fitErr)
		assert.Equal(t, "peak", fitErr.Peak)
	})

	t.Run("single level predictor", func(t *testing.T) {
		ds := dataset.New([]string{"a", "b", "c", "d"})
		require.NoError(t, ds.AddNumeric("peak", []float64{1, 2, 3, 4}))
		require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "liver", "liver", "liver"}))
		require.NoError(t, ds.AddCategorical("age", []string{"old", "young", "old", "young"}))

		_, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"tissue"}, stats.InteractionNone))
		assert.ErrorIs(t, err, core.ErrRankDeficient)
	})

	t.Run("label response", func(t *testing.T) {
		ds := dataset.New([]string{"a", "b", "c", "d"})
		require.NoError(t, ds.AddCategorical("peak", []string{"x", "y", "x", "y"}))
		require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "muscle", "liver", "muscle"}))
		require.NoError(t, ds.AddCategorical("age", []string{"old", "young", "old", "young"}))

		_, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"tissue"}, stats.InteractionNone))
		assert.ErrorIs(t, err, core.ErrNonNumericPeak)
	})

	t.Run("one sample per cell leaves no residual", func(t *testing.T) {
		ds := dataset.New([]string{"a", "b", "c", "d"})
		require.NoError(t, ds.AddNumeric("peak", []float64{1, 2, 3, 4}))
		require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "liver", "muscle", "muscle"}))
		require.NoError(t, ds.AddCategorical("age", []string{"old", "young", "old", "young"}))

		_, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"tissue", "age"}, stats.InteractionPairwise))
		assert.ErrorIs(t, err, core.ErrInsufficientData)
	})

	t.Run("infinite numeric predictor", func(t *testing.T) {
		ds := dataset.New([]string{"a", "b", "c", "d", "e", "f"})
		require.NoError(t, ds.AddNumeric("peak", []float64{1, 2, 3, 4, 5, 6}))
		require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "muscle", "liver", "muscle", "liver", "muscle"}))
		require.NoError(t, ds.AddNumeric("dose", []float64{1, 2, math.Inf(1), 4, 5, 6}))

		_, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"dose"}, stats.InteractionNone))
		require.ErrorIs(t, err, core.ErrInvalidSpec)
		assert.NotErrorIs(t, err, core.ErrRankDeficient)
		assert.Contains(t, err.Error(), `predictor "dose" has a non-finite value in sample c`)
	})

	t.Run("response mismatch", func(t *testing.T) {
		ds := twoGroupDataset(t)
		_, err := NewFitter().Fit(ds, "peak", build(t, "other", []string{"tissue"}, stats.InteractionNone))
		assert.ErrorIs(t, err, core.ErrInvalidSpec)
	})
}

func TestFit_MissingRowsDropped(t *testing.T) {
	ds := dataset.New([]string{"a", "b", "c", "d", "e", "f", "g"})
	require.NoError(t, ds.AddNumeric("peak", []float64{1, 2, 3, 4, 5, 6, math.NaN()}))
	require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "liver", "liver", "muscle", "muscle", "muscle", "muscle"}))
	require.NoError(t, ds.AddCategorical("age", []string{"old", "young", "old", "young", "old", "young", ""}))

	res, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"tissue"}, stats.InteractionNone))
	require.NoError(t, err)
	assert.Equal(t, 6, res.SampleSize)
	assert.InDelta(t, 13.5, res.FStats["tissue"], 1e-9)
}

func TestFit_ConstantPeakIsNotSignificant(t *testing.T) {
	ds := dataset.New([]string{"a", "b", "c", "d", "e", "f"})
	require.NoError(t, ds.AddNumeric("peak", []float64{7, 7, 7, 7, 7, 7}))
	require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "liver", "liver", "muscle", "muscle", "muscle"}))
	require.NoError(t, ds.AddCategorical("age", []string{"old", "young", "old", "young", "old", "young"}))

	res, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"tissue", "age"}, stats.InteractionNone))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.PValues["tissue"])
	assert.Equal(t, 1.0, res.PValues["age"])
}

func TestFit_NumericPredictor(t *testing.T) {
	ds := dataset.New([]string{"a", "b", "c", "d", "e", "f"})
	require.NoError(t, ds.AddNumeric("peak", []float64{2.1, 3.9, 6.2, 7.8, 10.1, 12.0}))
	require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "muscle", "liver", "muscle", "liver", "muscle"}))
	require.NoError(t, ds.AddNumeric("dose", []float64{1, 2, 3, 4, 5, 6}))

	res, err := NewFitter().Fit(ds, "peak", build(t, "peak", []string{"dose"}, stats.InteractionNone))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DF["dose"])
	assert.Equal(t, 4, res.ResidualDF)
	assert.Less(t, res.PValues["dose"], 1e-4)
}

func TestFit_CountsOutcomes(t *testing.T) {
	rec := metrics.NewRecorder()
	fitter := NewFitter(WithMetrics(rec))
	ds := twoGroupDataset(t)

	_, err := fitter.Fit(ds, "peak", build(t, "peak", []string{"tissue"}, stats.InteractionNone))
	require.NoError(t, err)
	_, err = fitter.Fit(ds, "peak", build(t, "other", []string{"tissue"}, stats.InteractionNone))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Fits(metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Fits(metrics.OutcomeError)))
}
