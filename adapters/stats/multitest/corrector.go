// Package multitest controls the false discovery rate across a term x peak p-value table.
package multitest

import (
	"fmt"
	"math"
	"sort"

	"metabostat/domain/core"
	"metabostat/domain/stats"
)

// DefaultAlpha is the family-wise FDR target used when callers pass zero
const DefaultAlpha = 0.05

// Correct applies the two-stage adaptive Benjamini-Hochberg procedure to every entry of
// table jointly (term rows are not corrected separately) and returns the result in the
// table's shape.
func Correct(table *stats.PValueTable, alpha float64) (*stats.CorrectedResult, error) {
	if table == nil {
		return nil, core.NewInvalidSpecError("nil p-value table")
	}
	if alpha == 0 {
		alpha = DefaultAlpha
	}

	rows, cols := table.Shape()
	for i, row := range table.Values {
		if len(row) != cols {
			return nil, core.NewInvalidSpecError(fmt.Sprintf("row %q has %d values, expected %d", table.Terms[i], len(row), cols))
		}
	}

	corrected, rejected, err := TwoStageBH(table.Flatten(), alpha)
	if err != nil {
		return nil, err
	}

	res := &stats.CorrectedResult{
		Terms:     append([]string(nil), table.Terms...),
		Peaks:     append([]string(nil), table.Peaks...),
		Corrected: make([][]float64, rows),
		Rejected:  make([][]bool, rows),
		Alpha:     alpha,
	}
	for i := 0; i < rows; i++ {
		res.Corrected[i] = corrected[i*cols : (i+1)*cols]
		res.Rejected[i] = rejected[i*cols : (i+1)*cols]
	}
	return res, nil
}

// TwoStageBH is the adaptive step-up procedure of Benjamini, Krieger and Yekutieli (2006)
// with a single re-estimation of the number of true null hypotheses. The first stage is
// plain BH at alpha; if it rejects some but not all hypotheses, BH is re-run at
// alpha*n/n0 and the adjusted values are rescaled by n0/n. Adjusted values never fall
// below the raw p-value, and a rejected hypothesis always has an adjusted value <= alpha.
func TwoStageBH(pvals []float64, alpha float64) ([]float64, []bool, error) {
	if err := validate(pvals, alpha); err != nil {
		return nil, nil, err
	}
	n := len(pvals)
	if n == 0 {
		return []float64{}, []bool{}, nil
	}

	corrected, rejected := BenjaminiHochberg(pvals, alpha)
	r1 := countTrue(rejected)
	if r1 == 0 || r1 == n {
		return corrected, rejected, nil
	}

	n0 := float64(n - r1)
	scale := n0 / float64(n)
	corrected, rejected = BenjaminiHochberg(pvals, alpha/scale)
	for i := range corrected {
		corrected[i] = math.Min(1, math.Max(pvals[i], corrected[i]*scale))
		// the relaxed second-stage threshold can exceed alpha; a raw p-value above it stays unrejected
		rejected[i] = rejected[i] && corrected[i] <= alpha
	}
	return corrected, rejected, nil
}

// BenjaminiHochberg rejects every hypothesis up to the largest rank i with p_(i) <= i/n*alpha
// and returns the step-up adjusted p-values in input order.
func BenjaminiHochberg(pvals []float64, alpha float64) ([]float64, []bool) {
	n := len(pvals)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pvals[order[a]] < pvals[order[b]]
	})

	cutoff := -1
	for rank, idx := range order {
		if pvals[idx] <= float64(rank+1)/float64(n)*alpha {
			cutoff = rank
		}
	}

	corrected := make([]float64, n)
	rejected := make([]bool, n)
	running := math.Inf(1)
	for rank := n - 1; rank >= 0; rank-- {
		idx := order[rank]
		adj := pvals[idx] * float64(n) / float64(rank+1)
		running = math.Min(running, adj)
		corrected[idx] = math.Min(1, running)
		rejected[idx] = rank <= cutoff
	}
	return corrected, rejected
}

func validate(pvals []float64, alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return core.NewInvalidSpecError(fmt.Sprintf("alpha %v outside (0, 1)", alpha))
	}
	for i, p := range pvals {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return core.NewInvalidSpecError(fmt.Sprintf("p-value %v at position %d outside [0, 1]", p, i))
		}
	}
	return nil
}

func countTrue(xs []bool) int {
	n := 0
	for _, x := range xs {
		if x {
			n++
		}
	}
	return n
}
