// internal/humanoid/interface.go
package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

// Executor is the low-level page surface the engine drives.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	// SendKeys types text into the focused element.
	SendKeys(ctx context.Context, keys string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	ViewportSize(ctx context.Context) (schemas.Viewport, error)
}

// ScrollDirection selects the sign of wheel deltas.
type ScrollDirection int

const (
	ScrollDown ScrollDirection = iota
	ScrollUp
)
