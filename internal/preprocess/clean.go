package preprocess

import (
	"math"
	"regexp"
	"sort"

	"github.com/montanaflynn/stats"

	"metabostat/domain/core"
)

var isotopePattern = regexp.MustCompile(`\[(\d+)\]\[(.+)\]`)

// PurgeControl masks study-sample intensities that fall below the largest blank intensity
// of the same peak. Peaks without any blank reading are left untouched.
func PurgeControl(m *PeakMatrix, g ColumnGroups) *PeakMatrix {
	out := m.Clone()
	blanks := m.sampleIndices(g.Blanks)
	study := m.sampleIndices(g.StudySamples)

	for i, row := range out.Intensities {
		threshold, err := stats.Max(finite(pick(row, blanks)))
		if err != nil {
			continue
		}
		for _, j := range study {
			if row[j] < threshold {
				out.Intensities[i][j] = math.NaN()
			}
		}
	}
	return out
}

// PurgeIsotopes keeps one peak per isotope group: the one that carries the group maximum in
// the most samples (first peak on ties). Grouped survivors come first ordered by group id,
// followed by peaks without an isotope annotation in their original order.
func PurgeIsotopes(m *PeakMatrix, g ColumnGroups) (*PeakMatrix, error) {
	cells, ok := m.Annotations["isotopes"]
	if !ok {
		return nil, core.NewColumnNotFoundError("isotopes")
	}
	cols := m.sampleIndices(g.Samples)

	groups := make(map[string][]int)
	var plain []int
	for i, cell := range cells {
		match := isotopePattern.FindStringSubmatch(cell)
		if match == nil {
			plain = append(plain, i)
			continue
		}
		groups[match[1]] = append(groups[match[1]], i)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	keep := make([]int, 0, len(ids)+len(plain))
	for _, id := range ids {
		keep = append(keep, dominantPeak(m, groups[id], cols))
	}
	keep = append(keep, plain...)
	return m.selectPeaks(keep), nil
}

// dominantPeak returns the row of members holding the column maximum most often
func dominantPeak(m *PeakMatrix, members, cols []int) int {
	wins := make([]int, len(members))
	for _, j := range cols {
		best := math.Inf(-1)
		for _, i := range members {
			if v := m.Intensities[i][j]; v > best {
				best = v
			}
		}
		for k, i := range members {
			if m.Intensities[i][j] == best {
				wins[k]++
			}
		}
	}
	bestK := 0
	for k := range wins {
		if wins[k] > wins[bestK] {
			bestK = k
		}
	}
	return members[bestK]
}

// RemoveNAPeaks drops peaks whose share of missing study-sample intensities exceeds fraction
func RemoveNAPeaks(m *PeakMatrix, g ColumnGroups, fraction float64) *PeakMatrix {
	study := m.sampleIndices(g.StudySamples)
	if len(study) == 0 {
		return m.Clone()
	}
	keep := make([]int, 0, m.PeakCount())
	for i, row := range m.Intensities {
		missing := 0
		for _, j := range study {
			if math.IsNaN(row[j]) {
				missing++
			}
		}
		if float64(missing)/float64(len(study)) <= fraction {
			keep = append(keep, i)
		}
	}
	return m.selectPeaks(keep)
}

// SubstituteNA fills missing study-sample intensities with half of the peak's smallest
// observed study-sample intensity. Peaks with no observation stay missing.
func SubstituteNA(m *PeakMatrix, g ColumnGroups) *PeakMatrix {
	out := m.Clone()
	study := m.sampleIndices(g.StudySamples)
	for i, row := range out.Intensities {
		lowest, err := stats.Min(finite(pick(row, study)))
		if err != nil {
			continue
		}
		for _, j := range study {
			if math.IsNaN(row[j]) {
				out.Intensities[i][j] = lowest / 2
			}
		}
	}
	return out
}

// ExcludeSamples drops sample columns named in excluded, matched either by full column name
// or by the animal identifier embedded in it (see ExtractSampleID)
func ExcludeSamples(m *PeakMatrix, excluded []string) *PeakMatrix {
	drop := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		drop[e] = true
	}

	var kept []int
	for j, s := range m.Samples {
		if drop[s] || drop[ExtractSampleID(s)] {
			continue
		}
		kept = append(kept, j)
	}

	out := m.Clone()
	out.Samples = make([]string, len(kept))
	for k, j := range kept {
		out.Samples[k] = m.Samples[j]
	}
	for i, row := range m.Intensities {
		out.Intensities[i] = pick(row, kept)
	}
	return out
}
