package excel

// ReaderConfig holds configuration for spreadsheet data sources
type ReaderConfig struct {
	Sheet    string `json:"sheet" yaml:"sheet"`         // xlsx sheet; empty means the first sheet
	IDColumn string `json:"id_column" yaml:"id_column"` // peak id column of wide exports; empty means the first column
}

// DefaultReaderConfig returns sensible defaults for spreadsheet processing
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{}
}
