// internal/browser/session/context_utils.go
package session

import "context"

// CombineContext returns a context that carries primary's values (the chromedp
// target lives there) and is cancelled when either primary or secondary is done.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context with ctx's values but none of its cancellation, for
// teardown work that must run after the caller's context is gone.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
