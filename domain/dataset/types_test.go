package dataset

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabostat/domain/core"
)

func sampleDataset(t *testing.T) *Dataset {
	t.Helper()
	ds := New([]string{"s1", "s2", "s3"})
	require.NoError(t, ds.AddNumeric("101", []float64{1, 2, 3}))
	require.NoError(t, ds.AddNumeric("peak_b", []float64{4, math.NaN(), 6}))
	require.NoError(t, ds.AddCategorical("tissue", []string{"liver", "muscle", ""}))
	require.NoError(t, ds.AddInferred("age", []string{"3", "NA", "24"}))
	return ds
}

func TestDatasetLayout(t *testing.T) {
	ds := sampleDataset(t)
	require.NoError(t, ds.Validate())

	assert.Equal(t, 3, ds.RowCount())
	assert.Equal(t, []string{"101", "peak_b"}, ds.PeakNames())
	assert.Equal(t, []string{"tissue", "age"}, ds.MetadataNames())
	assert.Equal(t, 2, ds.ColumnIndex("tissue"))
	assert.Equal(t, -1, ds.ColumnIndex("sex"))

	_, err := ds.Column("sex")
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}

func TestAddInferred(t *testing.T) {
	ds := New([]string{"a", "b", "c"})
	require.NoError(t, ds.AddInferred("num", []string{" 1.5", "nan", "2"}))
	require.NoError(t, ds.AddInferred("cat", []string{"old", "", "3"}))

	num, err := ds.Column("num")
	require.NoError(t, err)
	assert.Equal(t, KindNumeric, num.Kind)
	assert.True(t, num.IsMissing(1))
	assert.Equal(t, 1.5, num.Values[0])

	cat, err := ds.Column("cat")
	require.NoError(t, err)
	assert.Equal(t, KindCategorical, cat.Kind)
	assert.Equal(t, []string{"old", "", "3"}, cat.Labels)
	assert.True(t, cat.IsMissing(1))
	assert.Equal(t, "3", cat.Label(2))
	assert.Equal(t, "1.5", num.Label(0))
}

func TestAddRejectsBadColumns(t *testing.T) {
	ds := New([]string{"a", "b"})
	require.NoError(t, ds.AddNumeric("x", []float64{1, 2}))

	assert.ErrorIs(t, ds.AddNumeric("x", []float64{3, 4}), core.ErrInvalidSpec)
	assert.ErrorIs(t, ds.AddNumeric("y", []float64{1}), core.ErrInvalidSpec)
	assert.ErrorIs(t, ds.Validate(), core.ErrInvalidSpec, "no metadata columns yet")
}

func TestValidatePredictors(t *testing.T) {
	ds := sampleDataset(t)

	cases := []struct {
		name       string
		predictors []string
		ok         bool
	}{
		{"both", []string{"tissue", "age"}, true},
		{"one", []string{"age"}, true},
		{"empty", nil, false},
		{"peak as predictor", []string{"101"}, false},
		{"unknown", []string{"sex"}, false},
		{"duplicate", []string{"age", "age"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ds.ValidatePredictors(tc.predictors)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, core.ErrInvalidSpec)
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ds := sampleDataset(t)
	before := ds.Fingerprint()

	clone := ds.Clone()
	assert.Equal(t, before, clone.Fingerprint())

	col, err := clone.Column("tissue")
	require.NoError(t, err)
	col.Labels[0], col.Labels[1] = col.Labels[1], col.Labels[0]
	clone.Columns[0].Values[0] = 99

	assert.Equal(t, before, ds.Fingerprint())
	assert.NotEqual(t, before, clone.Fingerprint())

	orig, err := ds.Column("tissue")
	require.NoError(t, err)
	assert.Equal(t, "liver", orig.Labels[0])
}

func TestColumnIndex_ReadOnlyOnLiteralDataset(t *testing.T) {
	ds := &Dataset{
		SampleIDs: []string{"a", "b"},
		Columns: []Column{
			{Name: "p1", Kind: KindNumeric, Values: []float64{1, 2}},
			{Name: "tissue", Kind: KindCategorical, Labels: []string{"liver", "muscle"}},
			{Name: "age", Kind: KindNumeric, Values: []float64{3, 24}},
		},
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 1, ds.ColumnIndex("tissue"))
			assert.Equal(t, -1, ds.ColumnIndex("sex"))
		}()
	}
	wg.Wait()
	assert.Nil(t, ds.index, "lookups do not build the index")

	require.NoError(t, ds.Validate())
	assert.Len(t, ds.index, 3)

	// a rename behind the index's back is still resolved
	ds.Columns[0].Name = "p9"
	assert.Equal(t, 0, ds.ColumnIndex("p9"))
	assert.Equal(t, -1, ds.ColumnIndex("p1"))
}
