package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
)

const pollInterval = 100 * time.Millisecond

// Navigate loads url in the page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.runActions(opCtx, chromedp.Navigate(url)); err != nil {
		return checkerr.Browser(err, "session.Navigate", fmt.Sprintf("navigation to %s failed", url))
	}
	return nil
}

// WaitForLoad waits for DOM-ready, then the load event, then a quiet network.
// Each step is bounded by its own timeout and a step that times out is skipped.
func (s *Session) WaitForLoad(ctx context.Context) error {
	pageLoad := s.discordCfg.PageLoadTimeout
	if pageLoad <= 0 {
		pageLoad = 10 * time.Second
	}

	steps := []struct {
		name    string
		expr    string
		timeout time.Duration
	}{
		{"domcontentloaded", `document.readyState !== 'loading'`, pageLoad},
		{"load", `document.readyState === 'complete'`, pageLoad},
		{"networkidle", networkIdleExpr, pageLoad / 2},
	}

	for _, step := range steps {
		if err := s.poll(ctx, step.expr, step.timeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if checkerr.IsConnectionFatal(err) {
				return err
			}
			s.logger.Debug("Load step did not settle.", zap.String("step", step.name), zap.Error(err))
		}
	}
	return nil
}

// networkIdleExpr is truthy once no new resource entries appeared for 500ms.
const networkIdleExpr = `(() => {
  const n = performance.getEntriesByType('resource').length;
  const now = performance.now();
  const st = window.__rolecheckIdle || (window.__rolecheckIdle = { n: -1, t: now });
  if (st.n !== n) { st.n = n; st.t = now; return false; }
  return now - st.t >= 500;
})()`

// poll evaluates expr until it is truthy or timeout elapses.
func (s *Session) poll(ctx context.Context, expr string, timeout time.Duration) error {
	var ok bool
	return s.runActions(ctx, chromedp.Poll(expr, &ok,
		chromedp.WithPollingInterval(pollInterval),
		chromedp.WithPollingTimeout(timeout),
	))
}

// Evaluate runs script in the page, awaiting a returned promise, and decodes the
// result into out (which may be nil).
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	var raw []byte
	err := s.runActions(ctx, chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true).WithReturnByValue(true)
	}))
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

const visibilityJS = `((sel, idx) => {
  const nodes = document.querySelectorAll(sel);
  const el = nodes[idx || 0];
  if (!el) return null;
  const rect = el.getBoundingClientRect();
  const style = window.getComputedStyle(el);
  const visible = rect.width > 0 && rect.height > 0 &&
    style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
  return { visible, x: rect.left + rect.width / 2, y: rect.top + rect.height / 2 };
})(%s, %d)`

type elementState struct {
	Visible bool    `json:"visible"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

func (s *Session) elementState(ctx context.Context, selector string, index int) (*elementState, error) {
	var st *elementState
	if err := s.Evaluate(ctx, fmt.Sprintf(visibilityJS, jsonEncode(selector), index), &st); err != nil {
		return nil, err
	}
	return st, nil
}

// IsVisible reports whether the first element matching selector is rendered and visible.
func (s *Session) IsVisible(ctx context.Context, selector string) (bool, error) {
	st, err := s.elementState(ctx, selector, 0)
	if err != nil {
		return false, err
	}
	return st != nil && st.Visible, nil
}

// FindFirstVisible polls selectors in order and returns the first one with a
// visible match.
func (s *Session) FindFirstVisible(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			visible, err := s.IsVisible(ctx, sel)
			if err != nil && (ctx.Err() != nil || checkerr.IsConnectionFatal(err)) {
				return "", err
			}
			if visible {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("none of %d selectors became visible within %v", len(selectors), timeout)
		}
		if err := s.Sleep(ctx, pollInterval); err != nil {
			return "", err
		}
	}
}

// WaitHidden waits until selector is absent or hidden. It reports false if the
// element is still visible after timeout.
func (s *Session) WaitHidden(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		visible, err := s.IsVisible(ctx, selector)
		if err != nil && (ctx.Err() != nil || checkerr.IsConnectionFatal(err)) {
			return false, err
		}
		if err == nil && !visible {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if err := s.Sleep(ctx, pollInterval); err != nil {
			return false, err
		}
	}
}

// BoxCenter returns the viewport coordinates of the center of the first match.
func (s *Session) BoxCenter(ctx context.Context, selector string) (float64, float64, error) {
	st, err := s.elementState(ctx, selector, 0)
	if err != nil {
		return 0, 0, err
	}
	if st == nil || !st.Visible {
		return 0, 0, fmt.Errorf("element '%s' not found or not visible", selector)
	}
	return st.X, st.Y, nil
}

// OuterHTML returns the serialized markup of the first element matching selector.
func (s *Session) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := s.Evaluate(ctx, fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.outerHTML : ''; })()`, jsonEncode(selector)), &html)
	return html, err
}

// ViewportSize returns the page's inner window size.
func (s *Session) ViewportSize(ctx context.Context) (schemas.Viewport, error) {
	var vp schemas.Viewport
	err := s.Evaluate(ctx, `({width: window.innerWidth, height: window.innerHeight})`, &vp)
	return vp, err
}

// Sleep pauses for d, returning early if ctx or the page is done.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	pageCtx := s.Context()
	if pageCtx == nil {
		return checkerr.New(checkerr.KindBrowser, "session.Sleep", "page not initialized")
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-pageCtx.Done():
		return checkerr.Wrap(pageCtx.Err(), checkerr.KindBrowser, "session.Sleep", "page closed")
	case <-timer.C:
		return nil
	}
}

// jsonEncode renders v as a JavaScript literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// errNotFound is returned by index-based operations when the node does not exist.
var errNotFound = errors.New("element not found")
