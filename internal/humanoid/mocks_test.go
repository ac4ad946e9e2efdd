package humanoid

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

// fakeExecutor records every call and never blocks.
type fakeExecutor struct {
	mu       sync.Mutex
	viewport schemas.Viewport
	events   []schemas.MouseEventData
	keys     []string
	clicks   []string
	fills    map[string]string
	sleeps   []time.Duration
	err      error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		viewport: schemas.Viewport{Width: 1366, Height: 768},
		fills:    make(map[string]string),
	}
}

func (f *fakeExecutor) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	return ctx.Err()
}

func (f *fakeExecutor) DispatchMouseEvent(_ context.Context, data schemas.MouseEventData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, data)
	return f.err
}

func (f *fakeExecutor) SendKeys(_ context.Context, keys string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, keys)
	return f.err
}

func (f *fakeExecutor) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, selector)
	return f.err
}

func (f *fakeExecutor) Fill(_ context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills[selector] = value
	return f.err
}

func (f *fakeExecutor) ViewportSize(context.Context) (schemas.Viewport, error) {
	return f.viewport, nil
}

func (f *fakeExecutor) totalSleep() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total time.Duration
	for _, d := range f.sleeps {
		total += d
	}
	return total
}
