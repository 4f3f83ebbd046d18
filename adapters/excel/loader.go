package excel

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"metabostat/domain/core"
	"metabostat/domain/dataset"
	"metabostat/internal"
	"metabostat/internal/preprocess"
	"metabostat/ports"
)

// DatasetLoader reads sample tables and wide peak exports from .csv or .xlsx files
type DatasetLoader struct {
	config ReaderConfig
	logger *internal.Logger
}

var (
	_ ports.DatasetReaderPort = (*DatasetLoader)(nil)
	_ ports.ExportReaderPort  = (*DatasetLoader)(nil)
)

// NewDatasetLoader creates a loader
func NewDatasetLoader(config ReaderConfig, logger *internal.Logger) *DatasetLoader {
	return &DatasetLoader{config: config, logger: logger.OrDefault()}
}

// LoadDataset reads an analysis-ready table: the first column holds sample ids, then one
// column per peak, then dataset.MetadataColumns metadata columns. Metadata columns are
// numeric when every cell parses as a number, categorical otherwise.
func (l *DatasetLoader) LoadDataset(ctx context.Context, path string) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := NewDataReader(path, l.config, l.logger).ReadTable()
	if err != nil {
		return nil, err
	}

	if len(table.Headers) < 2+dataset.MetadataColumns {
		return nil, core.NewInvalidSpecError(fmt.Sprintf("%s: need a sample id column, at least one peak and %d metadata columns, found %d columns",
			path, dataset.MetadataColumns, len(table.Headers)))
	}

	ids := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		ids[i] = row[0]
	}
	ds := dataset.New(ids)

	metaStart := len(table.Headers) - dataset.MetadataColumns
	for j := 1; j < metaStart; j++ {
		name := table.Headers[j]
		values := make([]float64, len(table.Rows))
		for i, row := range table.Rows {
			v, err := parseIntensity(row[j])
			if err != nil {
				return nil, core.NewInvalidSpecError(fmt.Sprintf("%s: peak %q sample %q: %v", path, name, ids[i], err))
			}
			values[i] = v
		}
		if err := ds.AddNumeric(name, values); err != nil {
			return nil, err
		}
	}
	for j := metaStart; j < len(table.Headers); j++ {
		cells, _ := table.Column(table.Headers[j])
		if err := ds.AddInferred(table.Headers[j], cells); err != nil {
			return nil, err
		}
	}

	l.logger.Info("loaded %s: %d samples, %d peaks", path, ds.RowCount(), len(ds.PeakNames()))
	return ds, nil
}

// ReadPeakMatrix reads a wide instrument export: one row per peak, an id column (the
// configured one or the first), annotation columns such as mz/rt/isotopes, and one
// intensity column per sample.
func (l *DatasetLoader) ReadPeakMatrix(ctx context.Context, path string) (*preprocess.PeakMatrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := NewDataReader(path, l.config, l.logger).ReadTable()
	if err != nil {
		return nil, err
	}

	idCol := 0
	if l.config.IDColumn != "" {
		idCol = -1
		for j, h := range table.Headers {
			if h == l.config.IDColumn {
				idCol = j
			}
		}
		if idCol < 0 {
			return nil, core.NewColumnNotFoundError(l.config.IDColumn)
		}
	}

	m := &preprocess.PeakMatrix{
		PeakIDs:     make([]string, len(table.Rows)),
		Intensities: make([][]float64, len(table.Rows)),
		Annotations: make(map[string][]string),
	}
	var sampleCols []int
	for j, h := range table.Headers {
		switch {
		case j == idCol:
		case preprocess.IsAnnotation(h):
			m.Annotations[h], _ = table.Column(h)
		default:
			m.Samples = append(m.Samples, h)
			sampleCols = append(sampleCols, j)
		}
	}

	for i, row := range table.Rows {
		m.PeakIDs[i] = row[idCol]
		if m.PeakIDs[i] == "" {
			m.PeakIDs[i] = strconv.Itoa(i + 1)
		}
		m.Intensities[i] = make([]float64, len(sampleCols))
		for k, j := range sampleCols {
			v, err := parseIntensity(row[j])
			if err != nil {
				return nil, fmt.Errorf("%s: peak %s sample %q: %w", path, m.PeakIDs[i], table.Headers[j], err)
			}
			m.Intensities[i][k] = v
		}
	}

	l.logger.Info("loaded export %s: %d peaks, %d samples", path, m.PeakCount(), len(m.Samples))
	return m, m.Validate()
}

func parseIntensity(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "na") || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// ReadMetadata reads a per-animal metadata sheet (id, age and/or tissue mass columns)
func (l *DatasetLoader) ReadMetadata(ctx context.Context, path string) (map[string]preprocess.SampleMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := NewDataReader(path, l.config, l.logger).ReadTable()
	if err != nil {
		return nil, err
	}
	meta, err := preprocess.ParseMetadata(table.Headers, table.Rows)
	if err != nil {
		return nil, core.NewInvalidSpecError(fmt.Sprintf("%s: %v", path, err))
	}
	l.logger.Debug("loaded metadata for %d animals from %s", len(meta), path)
	return meta, nil
}
