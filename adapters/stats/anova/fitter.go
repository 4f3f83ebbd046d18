// Package anova fits per-peak linear models and assembles term x peak p-value tables.
package anova

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"

	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/domain/stats"
	"metabostat/internal/metrics"
)

// DefaultRankTolerance is the relative size below which a pivot of the QR
// factorisation marks a design column as linearly dependent.
const DefaultRankTolerance = 1e-10

// Fitter fits ordinary least squares models for single peaks and decomposes the
// explained variance sequentially (type I sums of squares), one F-test per term.
type Fitter struct {
	tolerance float64
	metrics   *metrics.Recorder
}

// FitterOption configures a Fitter
type FitterOption func(*Fitter)

// WithTolerance overrides DefaultRankTolerance
func WithTolerance(tol float64) FitterOption {
	return func(f *Fitter) {
		if tol > 0 {
			f.tolerance = tol
		}
	}
}

// WithMetrics counts fits on the given recorder
func WithMetrics(r *metrics.Recorder) FitterOption {
	return func(f *Fitter) {
		f.metrics = r
	}
}

// NewFitter creates a model fitter
func NewFitter(opts ...FitterOption) *Fitter {
	f := &Fitter{tolerance: DefaultRankTolerance}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit regresses peak on the terms of spec and returns one p-value per term.
// The residual row of the ANOVA table is never part of the result.
func (f *Fitter) Fit(ds *dataset.Dataset, peak string, spec stats.FormulaSpec) (res stats.ModelResult, err error) {
	defer func() { f.metrics.ObserveFit(err) }()

	if spec.Response != peak {
		return stats.ModelResult{}, core.NewInvalidSpecError(
			fmt.Sprintf("formula response %q does not match peak %q", spec.Response, peak))
	}
	if len(spec.Terms) == 0 {
		return stats.ModelResult{}, core.NewInvalidSpecError("formula has no terms")
	}

	d, err := buildDesign(ds, spec)
	if err != nil {
		return stats.ModelResult{}, err
	}

	effects, err := f.orthogonalEffects(peak, d)
	if err != nil {
		return stats.ModelResult{}, err
	}

	// sums of squares at round-off level relative to the response are exact zeros
	floor := floats.Dot(d.y, d.y) * f.tolerance * f.tolerance

	p := d.params()
	dfResid := d.rows - p
	rss := sumSquares(effects[p:], floor)
	mse := rss / float64(dfResid)

	res = stats.ModelResult{
		Peak:       peak,
		Terms:      spec.TermNames(),
		PValues:    make(map[string]float64, len(spec.Terms)),
		FStats:     make(map[string]float64, len(spec.Terms)),
		DF:         make(map[string]int, len(spec.Terms)),
		ResidualDF: dfResid,
		SampleSize: d.rows,
	}

	for t, term := range spec.Terms {
		start, end := d.termCols[t][0], d.termCols[t][1]
		ss := sumSquares(effects[start:end], floor)
		df := end - start
		fStat, pValue := fTest(ss/float64(df), mse, float64(df), float64(dfResid))

		res.PValues[term.Name] = pValue
		res.FStats[term.Name] = fStat
		res.DF[term.Name] = df
	}

	return res, nil
}

// orthogonalEffects returns Q'y for the QR factorisation of the design. The squared
// entries of the first p components are the sequential sums of squares of each column;
// the remaining components span the residual space.
func (f *Fitter) orthogonalEffects(peak string, d *design) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(d.x)

	var r mat.Dense
	qr.RTo(&r)

	p := d.params()
	for j := 0; j < p; j++ {
		norm := mat.Norm(d.x.ColView(j), 2)
		if norm == 0 || math.Abs(r.At(j, j)) <= f.tolerance*norm {
			return nil, core.NewModelFitError(peak, core.ErrRankDeficient,
				fmt.Sprintf("design column %s is linearly dependent on preceding columns", d.colNames[j]))
		}
	}

	var q mat.Dense
	qr.QTo(&q)

	var effects mat.VecDense
	effects.MulVec(q.T(), mat.NewVecDense(d.rows, d.y))
	return effects.RawVector().Data, nil
}

func sumSquares(xs []float64, floor float64) float64 {
	ss := floats.Dot(xs, xs)
	if ss <= floor {
		return 0
	}
	return ss
}

// fTest returns the F statistic and its upper-tail probability.
// A perfect fit (zero residual mean square) yields p = 0 for a term with explained
// variance and p = 1 for a term without any.
func fTest(msTerm, mse, d1, d2 float64) (float64, float64) {
	if mse == 0 {
		if msTerm > 0 {
			return math.Inf(1), 0
		}
		return 0, 1
	}
	fStat := msTerm / mse
	return fStat, fSurvival(fStat, d1, d2)
}

// fSurvival is P(F(d1, d2) > x) via the regularized incomplete beta function,
// which keeps precision for very small tail probabilities.
func fSurvival(x, d1, d2 float64) float64 {
	switch {
	case math.IsInf(x, 1):
		return 0
	case x <= 0 || math.IsNaN(x):
		return 1
	}
	p := mathext.RegIncBeta(d2/2, d1/2, d2/(d2+d1*x))
	return math.Min(1, math.Max(0, p))
}
