// Package discord drives the Discord web client through a browser page: it logs in,
// opens servers, searches for members and collects their roles.
package discord

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
	"github.com/xkilldash9x/rolecheck/internal/discord/scripts"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
)

// State is the controller's view of where the page currently is.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateOnServer
	StateSearchOpen
	StateProfileOpen
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateOnServer:
		return "on_server"
	case StateSearchOpen:
		return "search_open"
	case StateProfileOpen:
		return "profile_open"
	default:
		return "unknown"
	}
}

// escapeTimeout bounds the best-effort Escape press that closes overlays.
const escapeTimeout = 5 * time.Second

// Controller owns one page for the duration of one task. It is not safe for
// concurrent use beyond State.
type Controller struct {
	page   Page
	engine *humanoid.Engine
	cfg    config.DiscordConfig
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	cursor humanoid.Vector2D
}

// NewController creates a controller over page in the unauthenticated state.
func NewController(page Page, engine *humanoid.Engine, cfg config.DiscordConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		page:   page,
		engine: engine,
		cfg:    cfg,
		logger: logger.Named("discord"),
		state:  StateUnauthenticated,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	if prev != next {
		c.logger.Debug("State transition.", zap.Stringer("from", prev), zap.Stringer("to", next))
	}
}

// NavigateToLogin opens the login page.
func (c *Controller) NavigateToLogin(ctx context.Context) error {
	return c.navigate(ctx, c.cfg.LoginURL)
}

// NavigateHome opens the direct-messages home, which redirects to the login page
// when the browser holds no session.
func (c *Controller) NavigateHome(ctx context.Context) error {
	return c.navigate(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/channels/@me")
}

// NavigateToServer opens a server or channel URL and logs its access banner.
func (c *Controller) NavigateToServer(ctx context.Context, serverURL string) error {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return checkerr.New(checkerr.KindBrowser, "discord.NavigateToServer", "server URL is empty")
	}
	if err := c.navigate(ctx, serverURL); err != nil {
		return err
	}
	if c.State() >= StateAuthenticated {
		c.setState(StateOnServer)
	}
	if text, ok := c.ChannelAccessText(ctx); ok {
		c.logger.Info("Server opened.", zap.String("server_url", serverURL), zap.String("channel", text))
	} else {
		c.logger.Warn("Server opened but channel access could not be confirmed.", zap.String("server_url", serverURL))
	}
	return nil
}

func (c *Controller) navigate(ctx context.Context, url string) error {
	log := c.logger.With(zap.String("url", url))
	log.Info("Navigating.")

	if err := c.engine.Wait(ctx, humanoid.BeforeNavigation); err != nil {
		return err
	}
	if err := c.page.Navigate(ctx, url); err != nil {
		return checkerr.Browser(err, "discord.navigate", "failed to open "+url)
	}
	if err := c.waitForLoad(ctx, c.cfg.Timeout); err != nil {
		return checkerr.Browser(err, "discord.navigate", "page did not load")
	}
	if err := c.engine.RandomActivity(ctx, c.page); err != nil {
		if c.fatal(ctx, err) {
			return checkerr.Browser(err, "discord.navigate", "idle activity failed")
		}
		log.Debug("Idle activity failed.", zap.Error(err))
	}
	if err := c.engine.Wait(ctx, humanoid.AfterNavigation); err != nil {
		return err
	}
	log.Info("Page loaded.")
	return nil
}

// waitForLoad bounds WaitForLoad by timeout. Only cancellation of ctx or a dead
// connection is reported; a slow page is not an error.
func (c *Controller) waitForLoad(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := c.page.WaitForLoad(loadCtx)
	if err != nil && c.fatal(ctx, err) {
		return err
	}
	return nil
}

// ChannelAccessText reports the text of the channel access banner of the open
// server, if one is shown.
func (c *Controller) ChannelAccessText(ctx context.Context) (string, bool) {
	var text *string
	if err := c.page.Evaluate(ctx, scripts.ChannelAccess(), &text); err != nil {
		c.logger.Debug("Channel access check failed.", zap.Error(err))
		return "", false
	}
	if text == nil || strings.TrimSpace(*text) == "" {
		return "", false
	}
	return strings.TrimSpace(*text), true
}

// fatal reports whether err ends the session: ctx is done or the browser is gone.
func (c *Controller) fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || checkerr.IsConnectionFatal(err)
}

// pressEscape closes any open overlay. It runs even after ctx is cancelled.
func (c *Controller) pressEscape(ctx context.Context) {
	escCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), escapeTimeout)
	defer cancel()
	if err := c.page.PressKey(escCtx, "Escape", schemas.ModNone); err != nil {
		c.logger.Debug("Escape press failed.", zap.Error(err))
	}
}
