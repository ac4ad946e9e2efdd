// internal/humanoid/scrolling.go
package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

// HumanScroll scrolls by distance pixels in a handful of wheel notches. A zero
// distance picks one between 200 and 800px.
func (e *Engine) HumanScroll(ctx context.Context, exec Executor, direction ScrollDirection, distance int) error {
	if distance <= 0 {
		distance = e.intn(200, 800)
	}

	vp, err := exec.ViewportSize(ctx)
	if err != nil {
		return err
	}
	anchor := Vector2D{X: float64(vp.Width) / 2, Y: float64(vp.Height) / 2}

	steps := e.intn(3, 8)
	sign := 1.0
	if direction == ScrollUp {
		sign = -1.0
	}

	remaining := distance
	for i := 0; i < steps; i++ {
		delta := remaining / (steps - i)
		remaining -= delta

		if err := exec.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type:   schemas.MouseWheel,
			X:      anchor.X,
			Y:      anchor.Y,
			Button: schemas.ButtonNone,
			DeltaY: sign * float64(delta),
		}); err != nil {
			return err
		}
		if err := e.pause(ctx, exec, e.uniform(100*time.Millisecond, 300*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}
