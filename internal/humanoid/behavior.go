package humanoid

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RandomActivity occasionally performs a small idle gesture: a short scroll down,
// a short scroll up, or an aimless mouse sweep. Most calls do nothing.
func (e *Engine) RandomActivity(ctx context.Context, exec Executor) error {
	if !e.enabled || e.float64() >= e.activityProbability {
		return nil
	}

	switch e.intn(0, 2) {
	case 0:
		e.logger.Debug("Idle activity: scroll down.")
		return e.HumanScroll(ctx, exec, ScrollDown, e.intn(100, 300))
	case 1:
		e.logger.Debug("Idle activity: scroll up.")
		return e.HumanScroll(ctx, exec, ScrollUp, e.intn(50, 150))
	default:
		d := e.uniform(300*time.Millisecond, 800*time.Millisecond)
		e.logger.Debug("Idle activity: mouse movement.", zap.Duration("duration", d))
		return e.RandomMouseMovement(ctx, exec, d)
	}
}
