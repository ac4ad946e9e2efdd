package discord

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/discord/scripts"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
	"github.com/xkilldash9x/rolecheck/internal/results"
)

const loginFormTimeout = 2 * time.Second

// CheckAuthorization reports whether the page shows a logged-in client. It never
// fails; anything inconclusive counts as logged out.
func (c *Controller) CheckAuthorization(ctx context.Context) bool {
	authorized := c.checkAuthorization(ctx)
	switch {
	case authorized && c.State() < StateAuthenticated:
		c.setState(StateAuthenticated)
	case !authorized && c.State() != StateAuthenticating:
		c.setState(StateUnauthenticated)
	}
	return authorized
}

func (c *Controller) checkAuthorization(ctx context.Context) bool {
	_ = c.waitForLoad(ctx, c.cfg.AuthCheckTimeout)

	var ok bool
	if err := c.page.Evaluate(ctx, scripts.AuthCheck(), &ok); err != nil {
		c.logger.Debug("Authorization check failed.", zap.Error(err))
	} else if ok {
		c.logger.Info("Authorized.")
		return true
	}

	if sel, err := c.page.FindFirstVisible(ctx, authSelectors, c.cfg.ElementWaitTimeout); err == nil {
		c.logger.Info("Authorized (client element visible).", zap.String("selector", sel))
		return true
	}
	if _, err := c.page.FindFirstVisible(ctx, loginFormSelectors, loginFormTimeout); err == nil {
		c.logger.Warn("Not authorized: login form is shown.")
		return false
	}
	c.logger.Warn("Authorization state could not be determined.")
	return false
}

// Login fills and submits the login form, then verifies the result.
func (c *Controller) Login(ctx context.Context, email, password string) (err error) {
	const op = "discord.Login"
	c.setState(StateAuthenticating)
	defer func() {
		if err != nil {
			c.setState(StateUnauthenticated)
		}
	}()

	if err := c.waitForLoad(ctx, c.cfg.Timeout); err != nil {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "login page did not load")
	}
	if err := c.engine.Wait(ctx, humanoid.AfterNavigation); err != nil {
		return err
	}

	emailSel, err := c.page.FindFirstVisible(ctx, emailInputSelectors, c.cfg.ElementWaitTimeout)
	if err != nil {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "email field not found")
	}
	if err := c.typeInto(ctx, emailSel, email, humanoid.LoginTypeOptions()); err != nil {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "failed to enter email")
	}
	c.logger.Debug("Email entered.")
	if err := c.engine.RandomDelay(ctx, 300*time.Millisecond, 600*time.Millisecond); err != nil {
		return err
	}

	passwordSel, err := c.page.FindFirstVisible(ctx, passwordInputSelectors, c.cfg.ElementWaitTimeout)
	if err != nil {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "password field not found")
	}
	passwordOpts := humanoid.LoginTypeOptions()
	passwordOpts.SpeedMultiplier = 0.7
	passwordOpts.PauseProbability = 0
	if err := c.typeInto(ctx, passwordSel, password, passwordOpts); err != nil {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "failed to enter password")
	}
	c.logger.Debug("Password entered.")
	if err := c.engine.Wait(ctx, humanoid.AfterAction); err != nil {
		return err
	}

	buttonSel, err := c.page.FindFirstVisible(ctx, loginButtonSelectors, c.cfg.ElementWaitTimeout)
	if err != nil {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "login button not found")
	}
	if err := c.clickHumanlike(ctx, buttonSel); err != nil {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "failed to press login button")
	}
	c.logger.Debug("Login submitted.")

	hidden, err := c.page.WaitHidden(ctx, emailSel, c.cfg.Timeout)
	if err != nil && c.fatal(ctx, err) {
		return checkerr.Wrap(err, checkerr.KindAuthorization, op, "browser lost while waiting for login")
	}
	if !hidden {
		if err := c.engine.RandomDelay(ctx, c.cfg.WaitTime, c.cfg.WaitTime+2*time.Second); err != nil {
			return err
		}
	}

	if !c.CheckAuthorization(ctx) {
		return checkerr.New(checkerr.KindAuthorization, op, "login could not be verified")
	}
	c.logger.Info("Login succeeded.")
	return c.engine.Wait(ctx, humanoid.AfterAction)
}

// EnsureAuthorized leaves the page logged in as profile, logging in when the
// browser holds no session. A username that differs from profile.Username is
// reported but not treated as a failure.
func (c *Controller) EnsureAuthorized(ctx context.Context, profile schemas.Profile) error {
	log := c.logger.With(zap.String("serial_number", profile.SerialNumber))

	if err := c.NavigateHome(ctx); err != nil {
		return err
	}
	if !c.CheckAuthorization(ctx) {
		log.Info("Not authorized, logging in.")
		if err := c.NavigateToLogin(ctx); err != nil {
			return err
		}
		if err := c.Login(ctx, profile.Email, profile.Password); err != nil {
			return err
		}
	}

	expected := strings.TrimSpace(profile.Username)
	if expected == "" {
		return nil
	}
	current, ok := c.CurrentUsername(ctx)
	switch {
	case !ok:
		log.Warn("Could not read the current username.")
	case results.NormalizeUsername(current) != results.NormalizeUsername(expected):
		log.Warn("Logged in as a different user.", zap.String("expected", expected), zap.String("current", current))
	default:
		log.Info("Username confirmed.", zap.String("username", expected))
	}
	return nil
}

// CurrentUsername finds the logged-in account name in the client chrome: the
// first username-like element whose text contains '@' or '#'.
func (c *Controller) CurrentUsername(ctx context.Context) (string, bool) {
	_ = c.waitForLoad(ctx, c.cfg.PageLoadTimeout)

	doc, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Debug("Username lookup failed.", zap.Error(err))
		return "", false
	}
	for _, sel := range usernameSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if strings.ContainsAny(text, "@#") {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// typeInto clears a field and types value into it.
func (c *Controller) typeInto(ctx context.Context, selector, value string, opts humanoid.TypeOptions) error {
	if err := c.page.ClearField(ctx, selector); err != nil && c.fatal(ctx, err) {
		return err
	}
	return c.engine.TypeText(ctx, c.page, selector, value, opts)
}

// clickHumanlike glides the cursor to the element's center and clicks there,
// falling back to a DOM click when the element has no box.
func (c *Controller) clickHumanlike(ctx context.Context, selector string) error {
	x, y, err := c.page.BoxCenter(ctx, selector)
	if err != nil {
		if c.fatal(ctx, err) {
			return err
		}
		c.logger.Debug("No box for element, clicking through the DOM.", zap.String("selector", selector), zap.Error(err))
		return c.page.Click(ctx, selector)
	}

	target := humanoid.Vector2D{X: x, Y: y}
	c.mu.Lock()
	from := c.cursor
	c.mu.Unlock()

	if err := c.engine.MoveTo(ctx, c.page, from, target); err != nil {
		return err
	}
	c.mu.Lock()
	c.cursor = target
	c.mu.Unlock()

	if err := c.engine.RandomDelay(ctx, 100*time.Millisecond, 300*time.Millisecond); err != nil {
		return err
	}
	return c.engine.ClickAt(ctx, c.page, target)
}
