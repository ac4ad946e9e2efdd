package humanoid

import (
	"context"
	"time"
)

// HumanDelay returns a duration drawn uniformly from [base(1-variance), base(1+variance)].
func (e *Engine) HumanDelay(base time.Duration, variance float64) time.Duration {
	if variance < 0 {
		variance = -variance
	}
	low := time.Duration(float64(base) * (1 - variance))
	high := time.Duration(float64(base) * (1 + variance))
	if low < 0 {
		low = 0
	}
	return e.uniform(low, high)
}

// HumanTypeDelay returns the gap between two keystrokes, 50 to 150ms.
func (e *Engine) HumanTypeDelay() time.Duration {
	return e.uniform(50*time.Millisecond, 150*time.Millisecond)
}

// RandomDelay sleeps for a uniform duration in [min, max]. It returns early with
// ctx.Err() when the context is cancelled.
func (e *Engine) RandomDelay(ctx context.Context, min, max time.Duration) error {
	return e.sleep(ctx, e.uniform(min, max))
}

// Wait sleeps for a duration drawn from the window w.
func (e *Engine) Wait(ctx context.Context, w Window) error {
	return e.RandomDelay(ctx, w.Min, w.Max)
}
