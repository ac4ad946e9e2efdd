package discord

import (
	"context"
	"time"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
)

// Page is the browser surface the controller drives. *session.Session implements it.
type Page interface {
	humanoid.Executor

	Navigate(ctx context.Context, url string) error
	WaitForLoad(ctx context.Context) error
	Evaluate(ctx context.Context, script string, out interface{}) error

	FindFirstVisible(ctx context.Context, selectors []string, timeout time.Duration) (string, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	WaitHidden(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	BoxCenter(ctx context.Context, selector string) (float64, float64, error)

	ClickNth(ctx context.Context, selector string, index int) error
	ClearField(ctx context.Context, selector string) error
	PressKey(ctx context.Context, key string, modifiers schemas.KeyModifier) error
	OuterHTML(ctx context.Context, selector string) (string, error)
}
