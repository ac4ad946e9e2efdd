// internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/internal/config"
)

// Window is a closed interval of delay durations.
type Window struct {
	Min, Max time.Duration
}

// Named delay windows used around page interactions.
var (
	BeforeAction     = Window{Min: 300 * time.Millisecond, Max: 700 * time.Millisecond}
	AfterAction      = Window{Min: 500 * time.Millisecond, Max: 1000 * time.Millisecond}
	BeforeNavigation = Window{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond}
	AfterNavigation  = Window{Min: 500 * time.Millisecond, Max: 1000 * time.Millisecond}
	BetweenChecks    = Window{Min: 3000 * time.Millisecond, Max: 4500 * time.Millisecond}
)

// Engine produces human-like delays and disguise actions for one browser session.
type Engine struct {
	// mu guards rng, which is not safe for concurrent use.
	mu                  sync.Mutex
	rng                 *rand.Rand
	timeScale           float64
	activityProbability float64
	enabled             bool
	logger              *zap.Logger
}

// New creates an Engine seeded from the wall clock.
func New(cfg config.HumanoidConfig, logger *zap.Logger) *Engine {
	return NewWithRand(cfg, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates an Engine that draws from rng.
func NewWithRand(cfg config.HumanoidConfig, logger *zap.Logger, rng *rand.Rand) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		rng:                 rng,
		timeScale:           cfg.TimeScale,
		activityProbability: cfg.ActivityProbability,
		enabled:             cfg.Enabled,
		logger:              logger.Named("humanoid"),
	}
}

// NewTestEngine returns a deterministic Engine whose standalone delays do not wait.
func NewTestEngine(seed int64) *Engine {
	return NewWithRand(config.HumanoidConfig{
		Enabled:             true,
		TimeScale:           0,
		ActivityProbability: 0.3,
	}, zap.NewNop(), rand.New(rand.NewSource(seed)))
}

func (e *Engine) float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// intn returns a uniform int in [min, max].
func (e *Engine) intn(min, max int) int {
	if max <= min {
		return min
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return min + e.rng.Intn(max-min+1)
}

func (e *Engine) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(e.float64()*float64(max-min))
}

func (e *Engine) scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) * e.timeScale)
}

// pause waits d through the executor so fakes can observe the request.
func (e *Engine) pause(ctx context.Context, exec Executor, d time.Duration) error {
	return exec.Sleep(ctx, e.scale(d))
}

// sleep blocks for the scaled duration d or until ctx is done.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	d = e.scale(d)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
