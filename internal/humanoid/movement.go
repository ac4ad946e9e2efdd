// internal/humanoid/movement.go
package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

// RandomMouseMovement sweeps the cursor from a point in the central half of the
// viewport to a random point at least 100px from each edge, spread over duration.
func (e *Engine) RandomMouseMovement(ctx context.Context, exec Executor, duration time.Duration) error {
	vp, err := exec.ViewportSize(ctx)
	if err != nil {
		return err
	}
	w, h := vp.Width, vp.Height

	start := Vector2D{
		X: float64(e.intn(w/4, 3*w/4)),
		Y: float64(e.intn(h/4, 3*h/4)),
	}
	end := Vector2D{
		X: float64(e.intn(min(100, w/2), max(w-100, w/2))),
		Y: float64(e.intn(min(100, h/2), max(h-100, h/2))),
	}

	steps := e.intn(10, 20)
	stepPause := duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		p := start.Lerp(end, float64(i)/float64(steps))
		if err := exec.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type:   schemas.MouseMove,
			X:      p.X,
			Y:      p.Y,
			Button: schemas.ButtonNone,
		}); err != nil {
			return err
		}
		if err := e.pause(ctx, exec, stepPause); err != nil {
			return err
		}
	}
	return nil
}

// MoveTo glides the cursor from its last known point to target in a few steps.
func (e *Engine) MoveTo(ctx context.Context, exec Executor, from, target Vector2D) error {
	steps := e.intn(8, 15)
	for i := 1; i <= steps; i++ {
		p := from.Lerp(target, float64(i)/float64(steps))
		if err := exec.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type:   schemas.MouseMove,
			X:      p.X,
			Y:      p.Y,
			Button: schemas.ButtonNone,
		}); err != nil {
			return err
		}
		if err := e.pause(ctx, exec, e.uniform(8*time.Millisecond, 20*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}
