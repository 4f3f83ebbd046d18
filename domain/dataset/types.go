package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"metabostat/domain/core"
)

// MetadataColumns is the number of trailing non-peak columns in an analysis-ready table.
// Every column before them is treated as a peak.
const MetadataColumns = 2

// ColumnKind distinguishes intensity/numeric columns from label columns
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// Column is one named column of the sample table.
// Numeric columns populate Values (NaN marks a missing cell); categorical columns
// populate Labels ("" marks a missing cell).
type Column struct {
	Name   string     `json:"name"`
	Kind   ColumnKind `json:"kind"`
	Values []float64  `json:"values,omitempty"`
	Labels []string   `json:"labels,omitempty"`
}

// Len returns the number of cells in the column
func (c *Column) Len() int {
	if c.Kind == KindCategorical {
		return len(c.Labels)
	}
	return len(c.Values)
}

// IsMissing reports whether row i holds no value
func (c *Column) IsMissing(i int) bool {
	if c.Kind == KindCategorical {
		return c.Labels[i] == ""
	}
	return math.IsNaN(c.Values[i])
}

// Label renders row i as a categorical level
func (c *Column) Label(i int) string {
	if c.Kind == KindCategorical {
		return c.Labels[i]
	}
	return strconv.FormatFloat(c.Values[i], 'g', -1, 64)
}

func (c *Column) clone() Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Values != nil {
		out.Values = append([]float64(nil), c.Values...)
	}
	if c.Labels != nil {
		out.Labels = append([]string(nil), c.Labels...)
	}
	return out
}

// Dataset is the analysis-ready table: rows are samples, columns are peaks followed by
// MetadataColumns metadata columns. Column order is part of the contract.
type Dataset struct {
	SampleIDs []string `json:"sample_ids"`
	Columns   []Column `json:"columns"`

	index map[string]int
}

// New creates an empty dataset for the given samples
func New(sampleIDs []string) *Dataset {
	return &Dataset{
		SampleIDs: append([]string(nil), sampleIDs...),
		index:     make(map[string]int),
	}
}

// AddNumeric appends a numeric column
func (d *Dataset) AddNumeric(name string, values []float64) error {
	return d.add(Column{Name: name, Kind: KindNumeric, Values: values})
}

// AddCategorical appends a label column
func (d *Dataset) AddCategorical(name string, labels []string) error {
	return d.add(Column{Name: name, Kind: KindCategorical, Labels: labels})
}

// AddInferred appends a column from raw text cells. The column is numeric when every
// non-missing cell parses as a float, categorical otherwise. Empty, "NA" and "NaN" cells
// are missing in either kind.
func (d *Dataset) AddInferred(name string, cells []string) error {
	values := make([]float64, len(cells))
	numeric := true
	for i, cell := range cells {
		if missingCell(cell) {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			numeric = false
			break
		}
		values[i] = v
	}
	if numeric {
		return d.AddNumeric(name, values)
	}

	labels := make([]string, len(cells))
	for i, cell := range cells {
		if !missingCell(cell) {
			labels[i] = strings.TrimSpace(cell)
		}
	}
	return d.AddCategorical(name, labels)
}

func missingCell(cell string) bool {
	cell = strings.TrimSpace(cell)
	return cell == "" || strings.EqualFold(cell, "na") || strings.EqualFold(cell, "nan")
}

func (d *Dataset) add(col Column) error {
	if !d.indexed() {
		d.reindex()
	}
	if d.ColumnIndex(col.Name) >= 0 {
		return core.NewInvalidSpecError(fmt.Sprintf("duplicate column %q", col.Name))
	}
	if col.Len() != len(d.SampleIDs) {
		return core.NewInvalidSpecError(fmt.Sprintf("column %q has %d rows, dataset has %d samples",
			col.Name, col.Len(), len(d.SampleIDs)))
	}
	d.index[col.Name] = len(d.Columns)
	d.Columns = append(d.Columns, col)
	return nil
}

func (d *Dataset) reindex() {
	d.index = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		d.index[c.Name] = i
	}
}

// RowCount returns the number of samples
func (d *Dataset) RowCount() int {
	return len(d.SampleIDs)
}

func (d *Dataset) indexed() bool {
	return d.index != nil && len(d.index) == len(d.Columns)
}

// ColumnIndex returns the position of a column or -1. It never writes to d, so
// concurrent lookups are safe; a missing or stale index falls back to a scan.
func (d *Dataset) ColumnIndex(name string) int {
	if d.indexed() {
		if i, ok := d.index[name]; ok && d.Columns[i].Name == name {
			return i
		}
	}
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// Column looks up a column by name
func (d *Dataset) Column(name string) (*Column, error) {
	i := d.ColumnIndex(name)
	if i < 0 {
		return nil, core.NewColumnNotFoundError(name)
	}
	return &d.Columns[i], nil
}

// Names returns every column name in table order
func (d *Dataset) Names() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// PeakNames returns all columns except the trailing metadata columns
func (d *Dataset) PeakNames() []string {
	n := len(d.Columns) - MetadataColumns
	if n <= 0 {
		return nil
	}
	return d.Names()[:n]
}

// MetadataNames returns the trailing metadata column names
func (d *Dataset) MetadataNames() []string {
	if len(d.Columns) < MetadataColumns {
		return d.Names()
	}
	return d.Names()[len(d.Columns)-MetadataColumns:]
}

// ValidatePredictors checks that every predictor names a metadata column
func (d *Dataset) ValidatePredictors(predictors []string) error {
	if len(predictors) == 0 {
		return core.NewInvalidSpecError("no predictor variables given")
	}
	meta := make(map[string]bool, MetadataColumns)
	for _, name := range d.MetadataNames() {
		meta[name] = true
	}
	seen := make(map[string]bool, len(predictors))
	for _, p := range predictors {
		if !meta[p] {
			return core.NewInvalidSpecError(fmt.Sprintf("predictor %q is not a metadata column", p))
		}
		if seen[p] {
			return core.NewInvalidSpecError(fmt.Sprintf("predictor %q listed twice", p))
		}
		seen[p] = true
	}
	return nil
}

// Validate checks structural invariants of the table and rebuilds the column index.
// Call it before sharing the dataset between goroutines.
func (d *Dataset) Validate() error {
	if len(d.Columns) <= MetadataColumns {
		return core.NewInvalidSpecError(fmt.Sprintf("dataset needs at least one peak plus %d metadata columns, has %d columns",
			MetadataColumns, len(d.Columns)))
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if seen[c.Name] {
			return core.NewInvalidSpecError(fmt.Sprintf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
		if c.Len() != len(d.SampleIDs) {
			return core.NewInvalidSpecError(fmt.Sprintf("column %q has %d rows, dataset has %d samples",
				c.Name, c.Len(), len(d.SampleIDs)))
		}
	}
	d.reindex()
	return nil
}

// Clone returns a deep copy that shares no buffers with d
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		SampleIDs: append([]string(nil), d.SampleIDs...),
		Columns:   make([]Column, len(d.Columns)),
	}
	for i := range d.Columns {
		out.Columns[i] = d.Columns[i].clone()
	}
	out.reindex()
	return out
}

// Fingerprint hashes column names, kinds and cell contents in table order
func (d *Dataset) Fingerprint() core.Hash {
	var f core.Fingerprint
	for _, id := range d.SampleIDs {
		f.AddString(id)
	}
	for _, c := range d.Columns {
		f.AddString(c.Name)
		f.AddString(string(c.Kind))
		for _, v := range c.Values {
			f.AddFloat(v)
		}
		for _, l := range c.Labels {
			f.AddString(l)
		}
	}
	return f.Sum()
}
