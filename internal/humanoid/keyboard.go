// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TypeOptions controls the rhythm of TypeText.
type TypeOptions struct {
	// SpeedMultiplier scales every keystroke gap. Values below 1 type faster.
	SpeedMultiplier float64
	// PauseProbability is the per-character chance of a thinking pause.
	PauseProbability float64
	PauseMin         time.Duration
	PauseMax         time.Duration
	// Instant fills the whole value at once instead of typing it. A disabled
	// engine always types instantly.
	Instant bool
}

// DefaultTypeOptions returns the standard typing rhythm.
func DefaultTypeOptions() TypeOptions {
	return TypeOptions{
		SpeedMultiplier:  1.0,
		PauseProbability: 0.10,
		PauseMin:         300 * time.Millisecond,
		PauseMax:         500 * time.Millisecond,
	}
}

// LoginTypeOptions returns the calmer rhythm used on the login form.
func LoginTypeOptions() TypeOptions {
	return TypeOptions{
		SpeedMultiplier:  1.0,
		PauseProbability: 0.05,
		PauseMin:         200 * time.Millisecond,
		PauseMax:         400 * time.Millisecond,
	}
}

// TypeText focuses selector with a click and types text one character at a time.
func (e *Engine) TypeText(ctx context.Context, exec Executor, selector, text string, opts TypeOptions) error {
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1.0
	}
	if !e.enabled {
		opts.Instant = true
	}

	if err := exec.Click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to focus '%s': %w", selector, err)
	}
	if err := e.pause(ctx, exec, e.HumanDelay(200*time.Millisecond, 0.3)); err != nil {
		return err
	}

	if opts.Instant {
		if err := exec.Fill(ctx, selector, text); err != nil {
			return fmt.Errorf("humanoid: failed to fill '%s': %w", selector, err)
		}
		return e.pause(ctx, exec, e.HumanDelay(300*time.Millisecond, 0.3))
	}

	for i, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := exec.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: keystroke %d failed: %w", i, err)
		}

		gap := time.Duration(float64(e.HumanTypeDelay()) * opts.SpeedMultiplier)
		if err := e.pause(ctx, exec, gap); err != nil {
			return err
		}

		if opts.PauseProbability > 0 && e.float64() < opts.PauseProbability {
			if err := e.pause(ctx, exec, e.uniform(opts.PauseMin, opts.PauseMax)); err != nil {
				return err
			}
		}
	}

	e.logger.Debug("Typed text.", zap.String("selector", selector), zap.Int("length", len([]rune(text))))
	return nil
}
