package preprocess

import (
	"fmt"
	"math"
	"strconv"

	"metabostat/domain/core"
	"metabostat/domain/dataset"
)

// PeakMatrix is a wide instrument export: one row per peak, one intensity column per sample,
// plus the textual feature annotations (mz, rt, isotopes, ...). NaN marks a missing intensity.
type PeakMatrix struct {
	PeakIDs     []string            `json:"peak_ids"`
	Samples     []string            `json:"samples"`
	Intensities [][]float64         `json:"intensities"` // [peak][sample]
	Annotations map[string][]string `json:"annotations"` // column -> per-peak cell
}

// Validate checks that every row and annotation column is aligned with the peak list
func (m *PeakMatrix) Validate() error {
	if len(m.Intensities) != len(m.PeakIDs) {
		return core.NewInvalidSpecError(fmt.Sprintf("%d intensity rows for %d peaks", len(m.Intensities), len(m.PeakIDs)))
	}
	for i, row := range m.Intensities {
		if len(row) != len(m.Samples) {
			return core.NewInvalidSpecError(fmt.Sprintf("peak %s has %d intensities for %d samples", m.PeakIDs[i], len(row), len(m.Samples)))
		}
	}
	for name, cells := range m.Annotations {
		if len(cells) != len(m.PeakIDs) {
			return core.NewInvalidSpecError(fmt.Sprintf("annotation %s has %d cells for %d peaks", name, len(cells), len(m.PeakIDs)))
		}
	}
	return nil
}

// Clone returns a deep copy
func (m *PeakMatrix) Clone() *PeakMatrix {
	out := &PeakMatrix{
		PeakIDs:     append([]string(nil), m.PeakIDs...),
		Samples:     append([]string(nil), m.Samples...),
		Intensities: make([][]float64, len(m.Intensities)),
		Annotations: make(map[string][]string, len(m.Annotations)),
	}
	for i, row := range m.Intensities {
		out.Intensities[i] = append([]float64(nil), row...)
	}
	for name, cells := range m.Annotations {
		out.Annotations[name] = append([]string(nil), cells...)
	}
	return out
}

// PeakCount returns the number of peaks
func (m *PeakMatrix) PeakCount() int {
	return len(m.PeakIDs)
}

// sampleIndices resolves sample names to column positions, skipping unknown names
func (m *PeakMatrix) sampleIndices(names []string) []int {
	pos := make(map[string]int, len(m.Samples))
	for j, s := range m.Samples {
		pos[s] = j
	}
	idx := make([]int, 0, len(names))
	for _, name := range names {
		if j, ok := pos[name]; ok {
			idx = append(idx, j)
		}
	}
	return idx
}

// selectPeaks returns a copy holding only the given peak rows, in the given order
func (m *PeakMatrix) selectPeaks(rows []int) *PeakMatrix {
	out := &PeakMatrix{
		PeakIDs:     make([]string, len(rows)),
		Samples:     append([]string(nil), m.Samples...),
		Intensities: make([][]float64, len(rows)),
		Annotations: make(map[string][]string, len(m.Annotations)),
	}
	for k, i := range rows {
		out.PeakIDs[k] = m.PeakIDs[i]
		out.Intensities[k] = append([]float64(nil), m.Intensities[i]...)
	}
	for name, cells := range m.Annotations {
		sel := make([]string, len(rows))
		for k, i := range rows {
			sel[k] = cells[i]
		}
		out.Annotations[name] = sel
	}
	return out
}

// MZ parses the mz annotation column
func (m *PeakMatrix) MZ() ([]float64, error) {
	cells, ok := m.Annotations["mz"]
	if !ok {
		return nil, core.NewColumnNotFoundError("mz")
	}
	mz := make([]float64, len(cells))
	for i, cell := range cells {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("peak %s: mz %q: %w", m.PeakIDs[i], cell, err)
		}
		mz[i] = v
	}
	return mz, nil
}

// MetaColumn is one metadata column aligned with the sample list passed to ToDataset
type MetaColumn struct {
	Name   string
	Values []string
}

// ToDataset transposes the intensities of samples into the analysis-ready table: one row per
// sample, one numeric column per peak, then the metadata columns. Exactly
// dataset.MetadataColumns metadata columns are required.
func (m *PeakMatrix) ToDataset(samples []string, meta ...MetaColumn) (*dataset.Dataset, error) {
	if len(meta) != dataset.MetadataColumns {
		return nil, core.NewInvalidSpecError(fmt.Sprintf("need %d metadata columns, got %d", dataset.MetadataColumns, len(meta)))
	}
	cols := m.sampleIndices(samples)
	if len(cols) != len(samples) {
		return nil, core.NewInvalidSpecError("sample list names columns missing from the peak matrix")
	}

	ds := dataset.New(samples)
	for i, id := range m.PeakIDs {
		values := make([]float64, len(cols))
		for r, j := range cols {
			values[r] = m.Intensities[i][j]
		}
		if err := ds.AddNumeric(id, values); err != nil {
			return nil, err
		}
	}
	for _, mc := range meta {
		if err := ds.AddInferred(mc.Name, mc.Values); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// finite drops NaN entries
func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// pick gathers row entries at the given column positions
func pick(row []float64, cols []int) []float64 {
	out := make([]float64, len(cols))
	for k, j := range cols {
		out[k] = row[j]
	}
	return out
}
