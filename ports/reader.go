package ports

import (
	"context"

	"metabostat/domain/dataset"
	"metabostat/internal/preprocess"
)

// DatasetReaderPort loads an analysis-ready peak table
type DatasetReaderPort interface {
	LoadDataset(ctx context.Context, path string) (*dataset.Dataset, error)
}

// ExportReaderPort loads raw instrument exports and their sample metadata
type ExportReaderPort interface {
	ReadPeakMatrix(ctx context.Context, path string) (*preprocess.PeakMatrix, error)
	ReadMetadata(ctx context.Context, path string) (map[string]preprocess.SampleMetadata, error)
}
