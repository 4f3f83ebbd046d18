package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"metabostat/domain/dataset"
	"metabostat/domain/stats"
)

// WriteDatasetCSV writes ds in the layout LoadDataset reads: sample id, peaks, metadata
func WriteDatasetCSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	header := append([]string{"sample"}, ds.Names()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, id := range ds.SampleIDs {
		row := make([]string, 0, len(header))
		row = append(row, id)
		for c := range ds.Columns {
			col := &ds.Columns[c]
			if col.IsMissing(i) {
				row = append(row, "")
				continue
			}
			row = append(row, col.Label(i))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSignificantCSV writes the rejected entries of res as term,peak,corrected rows
func WriteSignificantCSV(w io.Writer, res *stats.CorrectedResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"term", "peak", "corrected_p"}); err != nil {
		return err
	}
	for i, term := range res.Terms {
		for j, peak := range res.Peaks {
			if !res.Rejected[i][j] {
				continue
			}
			if err := cw.Write([]string{term, peak, strconv.FormatFloat(res.Corrected[i][j], 'g', 6, 64)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultXLSX stores raw and corrected p-values as term x peak sheets; cells of
// non-significant entries on the "significant" sheet are left empty
func WriteResultXLSX(path string, raw *stats.PValueTable, res *stats.CorrectedResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), "raw"); err != nil {
		return err
	}
	if err := writeGrid(f, "raw", raw.Terms, raw.Peaks, func(i, j int) (float64, bool) {
		return raw.Values[i][j], true
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet("corrected"); err != nil {
		return err
	}
	if err := writeGrid(f, "corrected", res.Terms, res.Peaks, func(i, j int) (float64, bool) {
		return res.Corrected[i][j], true
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet("significant"); err != nil {
		return err
	}
	if err := writeGrid(f, "significant", res.Terms, res.Peaks, func(i, j int) (float64, bool) {
		return res.Corrected[i][j], res.Rejected[i][j]
	}); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func writeGrid(f *excelize.File, sheet string, terms, peaks []string, value func(i, j int) (float64, bool)) error {
	header := make([]interface{}, 0, len(peaks)+1)
	header = append(header, "term")
	for _, p := range peaks {
		header = append(header, p)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, term := range terms {
		row := make([]interface{}, 0, len(peaks)+1)
		row = append(row, term)
		for j := range peaks {
			v, ok := value(i, j)
			if !ok || math.IsNaN(v) {
				row = append(row, nil)
				continue
			}
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %s: %w", sheet, term, err)
		}
	}
	return nil
}
