package ports

import "context"

// ProgressObserver receives periodic notices from long-running resampling loops.
// It is not part of the computational contract: implementations must not block for long
// and their failures are not reported back.
type ProgressObserver interface {
	OnProgress(ctx context.Context, completed, total int)
}

// ProgressFunc adapts a plain function to ProgressObserver
type ProgressFunc func(ctx context.Context, completed, total int)

func (f ProgressFunc) OnProgress(ctx context.Context, completed, total int) {
	f(ctx, completed, total)
}
