// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext derives a context from sessionCtx that is also cancelled when
// opCtx is. Values, including the chromedp target, come from sessionCtx; the
// operational deadline comes from opCtx.
func CombineContext(sessionCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(sessionCtx)

	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext keeps the values of its parent but drops its deadline and
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context carrying the values of ctx that is never cancelled
// by it. Used for cleanup that must run after a page run's context is gone.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
