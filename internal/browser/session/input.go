package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
)

var _ humanoid.Executor = (*Session)(nil)

const inputTimeout = 10 * time.Second

// keyCodes maps the DOM key names the controller presses to their code and
// Windows virtual key code.
var keyCodes = map[string]struct {
	code string
	vk   int64
}{
	"Escape": {"Escape", 27},
	"Enter":  {"Enter", 13},
	"Tab":    {"Tab", 9},
	"k":      {"KeyK", 75},
	"a":      {"KeyA", 65},
}

func (s *Session) runInput(ctx context.Context, what string, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, inputTimeout)
	defer cancel()

	err := s.runActions(opCtx, actions...)
	if err != nil && opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		s.logger.Debug("Input timed out.", zap.String("input", what), zap.Duration("timeout", inputTimeout))
		return fmt.Errorf("%s timed out after %v: %w", what, inputTimeout, opCtx.Err())
	}
	return err
}

// DispatchMouseEvent sends a raw mouse event.
func (s *Session) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithClickCount(int64(data.ClickCount))
	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	return s.runInput(ctx, "mouse event", p)
}

// SendKeys types keys into the focused element.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	return s.runInput(ctx, "send keys", chromedp.KeyEvent(keys))
}

// PressKey presses and releases key while holding modifiers.
func (s *Session) PressKey(ctx context.Context, key string, modifiers schemas.KeyModifier) error {
	var mods input.Modifier
	if modifiers&schemas.ModAlt != 0 {
		mods |= input.ModifierAlt
	}
	if modifiers&schemas.ModCtrl != 0 {
		mods |= input.ModifierCtrl
	}
	if modifiers&schemas.ModMeta != 0 {
		mods |= input.ModifierMeta
	}
	if modifiers&schemas.ModShift != 0 {
		mods |= input.ModifierShift
	}

	down := input.DispatchKeyEvent(input.KeyDown).WithModifiers(mods).WithKey(key)
	up := input.DispatchKeyEvent(input.KeyUp).WithModifiers(mods).WithKey(key)
	if kc, ok := keyCodes[key]; ok {
		down = down.WithCode(kc.code).WithWindowsVirtualKeyCode(kc.vk)
		up = up.WithCode(kc.code).WithWindowsVirtualKeyCode(kc.vk)
	}
	return s.runInput(ctx, "key "+key, down, up)
}

// Click clicks the first visible element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.ClickNth(ctx, selector, 0)
}

// ClickNth scrolls the index-th match of selector into view and clicks it.
func (s *Session) ClickNth(ctx context.Context, selector string, index int) error {
	var clicked bool
	script := fmt.Sprintf(`((sel, idx) => {
  const el = document.querySelectorAll(sel)[idx];
  if (!el) return false;
  el.scrollIntoView({block: 'center', inline: 'center'});
  if (typeof el.focus === 'function') el.focus();
  el.click();
  return true;
})(%s, %d)`, jsonEncode(selector), index)

	if err := s.Evaluate(ctx, script, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("click '%s'[%d]: %w", selector, index, errNotFound)
	}
	return nil
}

// Fill sets the value of an input through the native setter so framework
// listeners observe the change.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	var ok bool
	script := fmt.Sprintf(`((sel, value) => {
  const el = document.querySelector(sel);
  if (!el) return false;
  el.focus();
  const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
  setter.call(el, value);
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})(%s, %s)`, jsonEncode(selector), jsonEncode(value))

	if err := s.Evaluate(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("fill '%s': %w", selector, errNotFound)
	}
	return nil
}

// ClearField empties an input.
func (s *Session) ClearField(ctx context.Context, selector string) error {
	return s.Fill(ctx, selector, "")
}
