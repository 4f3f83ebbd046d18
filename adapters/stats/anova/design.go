package anova

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/domain/stats"
)

// coding is the contrast-coded representation of one predictor over the kept rows.
// Categorical predictors use treatment coding against their first (sorted) level;
// numeric predictors contribute their values as a single column.
type coding struct {
	names   []string
	columns [][]float64
}

// design is the model matrix for one peak, columns grouped by term in formula order
type design struct {
	x        *mat.Dense
	y        []float64
	rows     int
	colNames []string
	termCols [][2]int // [start, end) of each term's columns; column 0 is the intercept
}

func (d *design) params() int {
	_, c := d.x.Dims()
	return c
}

func buildDesign(ds *dataset.Dataset, spec stats.FormulaSpec) (*design, error) {
	peak := spec.Response
	resp, err := ds.Column(peak)
	if err != nil {
		return nil, core.NewInvalidSpecError(fmt.Sprintf("response column %q not found", peak))
	}
	if resp.Kind != dataset.KindNumeric {
		return nil, core.NewModelFitError(peak, core.ErrNonNumericPeak, "response column holds labels, not intensities")
	}
	for i, v := range resp.Values {
		if math.IsInf(v, 0) {
			return nil, core.NewModelFitError(peak, core.ErrNonNumericPeak,
				fmt.Sprintf("non-finite intensity in sample %s", ds.SampleIDs[i]))
		}
	}

	predictors := make([]*dataset.Column, len(spec.Predictors))
	for i, name := range spec.Predictors {
		col, err := ds.Column(name)
		if err != nil {
			return nil, core.NewInvalidSpecError(fmt.Sprintf("predictor column %q not found", name))
		}
		predictors[i] = col
	}

	// rows with a missing response or predictor are dropped, as a formula frontend would
	var keep []int
	for i := 0; i < ds.RowCount(); i++ {
		if resp.IsMissing(i) {
			continue
		}
		complete := true
		for _, col := range predictors {
			if col.IsMissing(i) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}

	codings := make(map[string]coding, len(predictors))
	for _, col := range predictors {
		c, err := encode(peak, col, keep, ds.SampleIDs)
		if err != nil {
			return nil, err
		}
		codings[col.Name] = c
	}

	n := len(keep)
	y := make([]float64, n)
	for r, i := range keep {
		y[r] = resp.Values[i]
	}

	intercept := make([]float64, n)
	for r := range intercept {
		intercept[r] = 1
	}
	columns := [][]float64{intercept}
	colNames := []string{"Intercept"}
	termCols := make([][2]int, len(spec.Terms))

	for t, term := range spec.Terms {
		start := len(columns)
		cols, names := interact(term, codings)
		columns = append(columns, cols...)
		colNames = append(colNames, names...)
		termCols[t] = [2]int{start, len(columns)}
	}

	p := len(columns)
	if n <= p {
		return nil, core.NewModelFitError(peak, core.ErrInsufficientData,
			fmt.Sprintf("%d usable samples for %d model parameters", n, p))
	}

	x := mat.NewDense(n, p, nil)
	for j, col := range columns {
		x.SetCol(j, col)
	}

	return &design{
		x:        x,
		y:        y,
		rows:     n,
		colNames: colNames,
		termCols: termCols,
	}, nil
}

func encode(peak string, col *dataset.Column, keep []int, sampleIDs []string) (coding, error) {
	if col.Kind == dataset.KindNumeric {
		values := make([]float64, len(keep))
		for r, i := range keep {
			if math.IsInf(col.Values[i], 0) {
				return coding{}, core.NewInvalidSpecError(
					fmt.Sprintf("predictor %q has a non-finite value in sample %s", col.Name, sampleIDs[i]))
			}
			values[r] = col.Values[i]
		}
		return coding{names: []string{col.Name}, columns: [][]float64{values}}, nil
	}

	seen := make(map[string]bool)
	for _, i := range keep {
		seen[col.Labels[i]] = true
	}
	levels := make([]string, 0, len(seen))
	for l := range seen {
		levels = append(levels, l)
	}
	sort.Strings(levels)

	if len(levels) < 2 {
		return coding{}, core.NewModelFitError(peak, core.ErrRankDeficient,
			fmt.Sprintf("predictor %q has fewer than two levels among usable samples %v", col.Name, levels))
	}

	c := coding{}
	for _, level := range levels[1:] {
		indicator := make([]float64, len(keep))
		for r, i := range keep {
			if col.Labels[i] == level {
				indicator[r] = 1
			}
		}
		c.names = append(c.names, fmt.Sprintf("%s[T.%s]", col.Name, level))
		c.columns = append(c.columns, indicator)
	}
	return c, nil
}

// interact forms the elementwise products of the factors' coded columns
func interact(term stats.Term, codings map[string]coding) ([][]float64, []string) {
	first := codings[term.Factors[0]]
	cols := first.columns
	names := first.names

	for _, factor := range term.Factors[1:] {
		next := codings[factor]
		var prodCols [][]float64
		var prodNames []string
		for a, left := range cols {
			for b, right := range next.columns {
				prod := make([]float64, len(left))
				for r := range left {
					prod[r] = left[r] * right[r]
				}
				prodCols = append(prodCols, prod)
				prodNames = append(prodNames, strings.Join([]string{names[a], next.names[b]}, ":"))
			}
		}
		cols, names = prodCols, prodNames
	}
	return cols, names
}
