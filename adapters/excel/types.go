package excel

// RawTable is a sheet as read from disk: trimmed headers plus string rows.
// Rows shorter than the header are padded with empty cells.
type RawTable struct {
	Headers []string   // Column headers
	Rows    [][]string // Data rows, aligned with Headers
}

// Column returns the cells of the named column, or false when the header is absent
func (t *RawTable) Column(name string) ([]string, bool) {
	for j, h := range t.Headers {
		if h == name {
			cells := make([]string, len(t.Rows))
			for i, row := range t.Rows {
				cells[i] = row[j]
			}
			return cells, true
		}
	}
	return nil, false
}
