package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabostat/domain/dataset"
)

var nan = math.NaN()

func sampleMatrix() *PeakMatrix {
	return &PeakMatrix{
		PeakIDs: []string{"1", "2", "3", "4"},
		Samples: []string{"Blank_1", "liver_MS1", "liver_MS2", "QC_01", "wash_a"},
		Intensities: [][]float64{
			{5, 4, 8, 6, 1},
			{1, 10, 20, 15, 0},
			{0, 12, 18, 14, 0},
			{2, nan, nan, 3, 0},
		},
		Annotations: map[string][]string{
			"mz":       {"709.55189", "300.1", "301.1", "529.5331"},
			"isotopes": {"", "[7][M]+", "[7][M+1]+", ""},
		},
	}
}

func TestDivideColumns(t *testing.T) {
	g := DivideColumns([]string{"mz", "rt", "Blank_1", "liver_MS1", "QC_01", "wash_a", "isotopes"})

	assert.Equal(t, []string{"Blank_1"}, g.Blanks)
	assert.Equal(t, []string{"QC_01"}, g.QC)
	assert.Equal(t, []string{"wash_a"}, g.Washes)
	assert.Equal(t, []string{"Blank_1", "liver_MS1", "QC_01", "wash_a"}, g.Samples)
	assert.Equal(t, []string{"liver_MS1", "QC_01"}, g.StudySamples)
	assert.True(t, IsAnnotation("pcgroup"))
	assert.False(t, IsAnnotation("liver_MS1"))
}

func TestPurgeControl(t *testing.T) {
	m := sampleMatrix()
	out := PurgeControl(m, DivideColumns(m.Samples))

	// peak 1: blank 5 masks liver_MS1 (4); QC (6) and liver_MS2 (8) survive
	assert.True(t, math.IsNaN(out.Intensities[0][1]))
	assert.Equal(t, 8.0, out.Intensities[0][2])
	assert.Equal(t, 6.0, out.Intensities[0][3])
	// blanks and washes themselves are never masked
	assert.Equal(t, 5.0, out.Intensities[0][0])
	assert.Equal(t, 1.0, out.Intensities[0][4])
	// input untouched
	assert.Equal(t, 4.0, m.Intensities[0][1])
}

func TestPurgeIsotopes(t *testing.T) {
	m := sampleMatrix()
	out, err := PurgeIsotopes(m, DivideColumns(m.Samples))
	require.NoError(t, err)

	// peak 2 and 3 share group 7; peak 2 holds the maximum in more samples
	assert.Equal(t, []string{"2", "1", "4"}, out.PeakIDs)
	assert.Equal(t, []string{"300.1", "709.55189", "529.5331"}, out.Annotations["mz"])

	delete(m.Annotations, "isotopes")
	_, err = PurgeIsotopes(m, DivideColumns(m.Samples))
	assert.Error(t, err)
}

func TestRemoveNAAndSubstitute(t *testing.T) {
	m := sampleMatrix()
	g := DivideColumns(m.Samples)

	kept := RemoveNAPeaks(m, g, 0.4)
	assert.Equal(t, []string{"1", "2", "3"}, kept.PeakIDs, "peak 4 misses 2 of 3 study samples")

	filled := SubstituteNA(m, g)
	assert.Equal(t, 1.5, filled.Intensities[3][1])
	assert.Equal(t, 1.5, filled.Intensities[3][2])
	assert.Equal(t, 3.0, filled.Intensities[3][3])
}

func TestExcludeSamples(t *testing.T) {
	m := sampleMatrix()
	out := ExcludeSamples(m, []string{"MS2", "wash_a"})

	assert.Equal(t, []string{"Blank_1", "liver_MS1", "QC_01"}, out.Samples)
	assert.Equal(t, []float64{5, 4, 6}, out.Intensities[0])
	require.NoError(t, out.Validate())
}

func TestLogAndPercentile(t *testing.T) {
	m := &PeakMatrix{
		PeakIDs:     []string{"a"},
		Samples:     []string{"s1", "s2", "s3", "s4"},
		Intensities: [][]float64{{0, math.E - 1, 1, 3}},
	}
	logged := LogScale(m)
	assert.InDelta(t, 0, logged.Intensities[0][0], 1e-12)
	assert.InDelta(t, 1, logged.Intensities[0][1], 1e-12)

	normalized, err := PercentileNormalize(m, 0.5)
	require.NoError(t, err)
	// the subtracted level sits within the observed range, ordering is preserved
	row := normalized.Intensities[0]
	assert.Less(t, row[0], row[2])
	assert.Less(t, row[2], row[3])
	assert.InDelta(t, m.Intensities[0][3]-m.Intensities[0][0], row[3]-row[0], 1e-12)

	_, err = PercentileNormalize(m, 1.5)
	assert.Error(t, err)
}

func TestStandardNormalize(t *testing.T) {
	m := sampleMatrix()
	out, err := StandardNormalize(m, DefaultStandards, 4)
	require.NoError(t, err)

	// standards are peaks 1 (pg) and 4 (ceramide); the per-sample maximum is subtracted
	assert.Equal(t, 0.0, out.Intensities[0][0])
	assert.Equal(t, 20.0-8.0, out.Intensities[1][2])
	assert.Equal(t, 15.0-6.0, out.Intensities[1][3])

	_, err = StandardNormalize(m, map[string][]float64{"x": {100.123}}, 5)
	assert.ErrorIs(t, err, ErrNoStandards)
}

func TestMassNormalizeAndZScore(t *testing.T) {
	m := &PeakMatrix{
		PeakIDs:     []string{"a", "b"},
		Samples:     []string{"s1", "s2", "s3"},
		Intensities: [][]float64{{1, 2, 3}, {4, 4, 4}},
	}
	massed := MassNormalize(m, map[string]float64{"s2": math.E, "s3": -1})
	assert.InDeltaSlice(t, []float64{1, 1, 3}, massed.Intensities[0], 1e-12)

	z := ZScore(m)
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, z.Intensities[0], 1e-12)
	assert.Equal(t, []float64{0, 0, 0}, z.Intensities[1])
}

func TestExtractLabels(t *testing.T) {
	samples := []string{"Brain.PFC_MS3", "liver_MS1", "Plasma-02", "unknown"}
	labels := ExtractLabels(samples, DefaultTissues())

	assert.Equal(t, []string{"brain_pfc", "liver", "plasma", ""}, labels)
	assert.Equal(t, "MS3", ExtractSampleID("Brain.PFC_MS3"))
	assert.Equal(t, "", ExtractSampleID("Blank_1"))
}

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata(
		[]string{"Animal ID", "Age (months)", "Tissue weight"},
		[][]string{{"ms1", "3", "0.12"}, {"MS2", "24", "0.3"}, {"", "1", "1"}},
	)
	require.NoError(t, err)
	assert.Len(t, meta, 2)

	rec, ok := LookupMetadata(meta, "liver_MS1")
	require.True(t, ok)
	assert.Equal(t, "3", rec.Age)
	assert.Equal(t, "0.12", rec.Mass)

	_, err = ParseMetadata([]string{"name"}, nil)
	assert.Error(t, err)
}

func TestToDataset(t *testing.T) {
	m := sampleMatrix()
	samples := []string{"liver_MS1", "liver_MS2", "QC_01"}

	ds, err := m.ToDataset(samples,
		MetaColumn{Name: "tissue", Values: []string{"liver", "liver", "qc"}},
		MetaColumn{Name: "age", Values: []string{"3", "24", ""}},
	)
	require.NoError(t, err)
	require.NoError(t, ds.Validate())

	assert.Equal(t, samples, ds.SampleIDs)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ds.PeakNames())
	col, err := ds.Column("2")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 15}, col.Values)

	age, err := ds.Column("age")
	require.NoError(t, err)
	assert.Equal(t, dataset.KindNumeric, age.Kind)
	assert.True(t, age.IsMissing(2))

	_, err = m.ToDataset(samples, MetaColumn{Name: "tissue"})
	assert.Error(t, err)
}

func TestRun_DefaultPipeline(t *testing.T) {
	m := sampleMatrix()
	out, groups, err := Run(m, DefaultOptions(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"liver_MS1", "liver_MS2", "QC_01"}, groups.StudySamples)
	assert.Equal(t, 3, out.PeakCount())
	for _, row := range out.Intensities {
		for j := 1; j <= 3; j++ {
			assert.False(t, math.IsNaN(row[j]), "study cells are filled")
		}
	}

	opts := DefaultOptions()
	opts.Normalization = "bogus"
	_, _, err = Run(m, opts, nil, nil)
	assert.Error(t, err)
}

func TestNormalForm(t *testing.T) {
	m := sampleMatrix()
	groups := DivideColumns(m.Samples)
	meta := map[string]SampleMetadata{"MS1": {ID: "MS1", Age: "3"}, "MS2": {ID: "MS2", Age: "24"}}

	ds, err := NormalForm(m, groups, meta, DefaultTissues())
	require.NoError(t, err)

	assert.Equal(t, []string{"liver_MS1", "liver_MS2"}, ds.SampleIDs, "qc and controls are dropped")
	assert.Equal(t, []string{"tissue", "age"}, ds.MetadataNames())
	tissue, err := ds.Column("tissue")
	require.NoError(t, err)
	assert.Equal(t, []string{"liver", "liver"}, tissue.Labels)
	age, err := ds.Column("age")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 24}, age.Values)

	onlyQC := ColumnGroups{StudySamples: []string{"QC_01"}, QC: []string{"QC_01"}}
	_, err = NormalForm(m, onlyQC, nil, DefaultTissues())
	assert.Error(t, err)
}
