package httpapi

import (
	"context"
)

// joinContexts returns a context derived from req (keeping its values) that
// is also canceled when base is done. The returned cancel func must be called
// to release the goroutine when the handler ends.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	go func() {
		select {
		case <-base.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
