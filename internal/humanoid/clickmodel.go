package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

// ClickAt presses and releases the left button at p with a short human hold.
func (e *Engine) ClickAt(ctx context.Context, exec Executor, p Vector2D) error {
	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          p.X,
		Y:          p.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
	}
	if err := exec.DispatchMouseEvent(ctx, press); err != nil {
		return err
	}

	hold := e.uniform(40*time.Millisecond, 110*time.Millisecond)
	if err := e.pause(ctx, exec, hold); err != nil {
		// Never leave the button held down.
		release := press
		release.Type = schemas.MouseRelease
		_ = exec.DispatchMouseEvent(context.Background(), release)
		return err
	}

	release := press
	release.Type = schemas.MouseRelease
	return exec.DispatchMouseEvent(ctx, release)
}
