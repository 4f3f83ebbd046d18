package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// ErrNoStandards is returned when no internal standard peak matches the requested m/z values
var ErrNoStandards = errors.New("no internal standard peaks found")

// DefaultStandards lists [M-H]- and [M+Ac-H]- m/z values of the lipid internal standards
var DefaultStandards = map[string][]float64{
	"pg":       {709.55189, 769.57302},
	"pe":       {740.54648, 800.56761},
	"ceramide": {529.53310, 589.55423},
}

// LogScale replaces every intensity x with log(1 + x)
func LogScale(m *PeakMatrix) *PeakMatrix {
	out := m.Clone()
	for _, row := range out.Intensities {
		for j, v := range row {
			row[j] = math.Log1p(v)
		}
	}
	return out
}

// PercentileNormalize subtracts each peak's q-th quantile (0 < q <= 1) across samples.
// Intensities are expected to be log scaled already.
func PercentileNormalize(m *PeakMatrix, q float64) (*PeakMatrix, error) {
	if !(q > 0 && q <= 1) {
		return nil, fmt.Errorf("quantile %v outside (0, 1]", q)
	}
	out := m.Clone()
	for i, row := range out.Intensities {
		obs := finite(row)
		if len(obs) == 0 {
			continue
		}
		level, err := stats.Percentile(obs, q*100)
		if err != nil {
			// too few observations for interpolation; fall back to the largest one
			level, err = stats.Max(obs)
			if err != nil {
				return nil, fmt.Errorf("peak %s: %w", m.PeakIDs[i], err)
			}
		}
		floats.AddConst(-level, row)
	}
	return out, nil
}

// StandardNormalize subtracts, per sample, the largest intensity among the internal standard
// peaks. Standards are matched by m/z rounded to precision decimals.
func StandardNormalize(m *PeakMatrix, standards map[string][]float64, precision int) (*PeakMatrix, error) {
	mz, err := m.MZ()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(standards))
	for name := range standards {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []int
	for _, name := range names {
		for _, target := range standards[name] {
			want := roundTo(target, precision)
			for i, v := range mz {
				if roundTo(v, precision) == want {
					rows = append(rows, i)
				}
			}
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w at precision %d; try fewer decimals", ErrNoStandards, precision)
	}

	reference := make([]float64, len(m.Samples))
	for j := range reference {
		column := make([]float64, 0, len(rows))
		for _, i := range rows {
			column = append(column, m.Intensities[i][j])
		}
		best, err := stats.Max(finite(column))
		if err != nil {
			best = math.NaN()
		}
		reference[j] = best
	}

	out := m.Clone()
	for _, row := range out.Intensities {
		floats.Sub(row, reference)
	}
	return out, nil
}

// MassNormalize subtracts log(mass) from the intensities of samples with a known positive
// tissue mass. Samples missing from masses are left unchanged.
func MassNormalize(m *PeakMatrix, masses map[string]float64) *PeakMatrix {
	out := m.Clone()
	for j, sample := range out.Samples {
		mass, ok := masses[sample]
		if !ok || !(mass > 0) {
			continue
		}
		shift := math.Log(mass)
		for _, row := range out.Intensities {
			row[j] -= shift
		}
	}
	return out
}

// ZScore standardises every peak to zero mean and unit sample standard deviation.
// Constant peaks become all zeros.
func ZScore(m *PeakMatrix) *PeakMatrix {
	out := m.Clone()
	for _, row := range out.Intensities {
		obs := finite(row)
		if len(obs) == 0 {
			continue
		}
		mean, _ := stats.Mean(obs)
		floats.AddConst(-mean, row)

		sd, err := stats.StandardDeviationSample(obs)
		if err != nil || sd == 0 || math.IsNaN(sd) {
			for j, v := range row {
				if !math.IsNaN(v) {
					row[j] = 0
				}
			}
			continue
		}
		floats.Scale(1/sd, row)
	}
	return out
}

func roundTo(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(x*p) / p
}
