package battery

import (
	"context"

	"metabostat/internal"
	"metabostat/ports"
)

// NewLoggingProgress reports permutation progress as info log lines
func NewLoggingProgress(logger *internal.Logger) ports.ProgressObserver {
	logger = logger.OrDefault().With("permutation")
	return ports.ProgressFunc(func(_ context.Context, completed, total int) {
		logger.Info("%d/%d permutations done", completed, total)
	})
}
