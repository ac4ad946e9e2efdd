package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

type keyPress struct {
	Key       string
	Modifiers schemas.KeyModifier
}

type nthClick struct {
	Selector string
	Index    int
}

// fakePage is a scripted Page. Visibility is a per-selector switch and script
// results are chosen by recognising which embedded program is evaluated.
type fakePage struct {
	mu sync.Mutex

	visible     map[string]bool
	authorized  bool
	channelText *string
	roles       string
	body        string

	navigateErr error
	evalErr     error
	collectErr  error
	pressErr    error

	// onSubmit runs when the mouse button is released, as if the login form was submitted.
	onSubmit func(f *fakePage)

	navigations []string
	typed       strings.Builder
	clicks      []string
	nthClicks   []nthClick
	presses     []keyPress
	mouse       []schemas.MouseEventData
	scripts     []string
}

func newFakePage() *fakePage {
	return &fakePage{visible: make(map[string]bool)}
}

func (f *fakePage) setVisible(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		f.visible[s] = true
	}
}

func assign(out interface{}, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *fakePage) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (f *fakePage) DispatchMouseEvent(_ context.Context, data schemas.MouseEventData) error {
	f.mu.Lock()
	f.mouse = append(f.mouse, data)
	submit := f.onSubmit
	f.mu.Unlock()
	if data.Type == schemas.MouseRelease && submit != nil {
		submit(f)
	}
	return nil
}

func (f *fakePage) SendKeys(_ context.Context, keys string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed.WriteString(keys)
	return nil
}

func (f *fakePage) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakePage) Fill(context.Context, string, string) error { return nil }

func (f *fakePage) ViewportSize(context.Context) (schemas.Viewport, error) {
	return schemas.Viewport{Width: 1366, Height: 768}, nil
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	return f.navigateErr
}

func (f *fakePage) WaitForLoad(ctx context.Context) error { return ctx.Err() }

func (f *fakePage) Evaluate(_ context.Context, script string, out interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, script)
	if f.evalErr != nil {
		return f.evalErr
	}
	switch {
	case strings.Contains(script, "maxSteps"):
		if f.collectErr != nil {
			return f.collectErr
		}
		return assign(out, f.roles)
	case strings.Contains(script, "text-sm/medium"):
		return assign(out, f.channelText)
	case strings.Contains(script, "/channels/@me"):
		return assign(out, f.authorized)
	}
	return fmt.Errorf("unexpected script")
}

func (f *fakePage) FindFirstVisible(_ context.Context, selectors []string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		if f.visible[s] {
			return s, nil
		}
	}
	return "", errors.New("none of the selectors became visible")
}

func (f *fakePage) IsVisible(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible[selector], nil
}

func (f *fakePage) WaitHidden(_ context.Context, selector string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.visible[selector], nil
}

func (f *fakePage) BoxCenter(_ context.Context, selector string) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible[selector] {
		return 0, 0, errors.New("element not found or not visible")
	}
	return 100, 200, nil
}

func (f *fakePage) ClickNth(_ context.Context, selector string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nthClicks = append(f.nthClicks, nthClick{Selector: selector, Index: index})
	return nil
}

func (f *fakePage) ClearField(context.Context, string) error { return nil }

func (f *fakePage) PressKey(_ context.Context, key string, modifiers schemas.KeyModifier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presses = append(f.presses, keyPress{Key: key, Modifiers: modifiers})
	return f.pressErr
}

func (f *fakePage) OuterHTML(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body, nil
}

var _ Page = (*fakePage)(nil)
