package resilience

import (
	"context"
	"time"

	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
)

// RunWithTimeout wraps a single attempt with a deadline derived from the
// caller's context. The invocation runs in its own goroutine and is expected
// to observe cancellation; if it does not return before the deadline the
// guard returns a timeout error immediately while the invocation drains in
// the background (the result channel is buffered, so the goroutine never
// leaks blocked). The workload is never force-killed.
func RunWithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type attemptResult struct {
		value interface{}
		err   error
	}

	resultCh := make(chan attemptResult, 1)
	go func() {
		value, err := fn(attemptCtx)
		resultCh <- attemptResult{value: value, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, apperrors.NewCancelledError(name).WithCause(ctx.Err())
		}
		return nil, apperrors.NewTimeoutError(name).WithCause(attemptCtx.Err())
	}
}
