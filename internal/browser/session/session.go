// internal/browser/session/session.go
package session

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/internal/browser/stealth"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
)

// Session owns one browser page, either attached to a remote profile over CDP or
// backed by a locally launched Chrome.
type Session struct {
	browserCfg config.BrowserConfig
	discordCfg config.DiscordConfig
	engine     *humanoid.Engine
	logger     *zap.Logger

	mu     sync.RWMutex
	ctx    context.Context
	remote bool

	closePage    func()
	closeBrowser func()
	closeDriver  func()
	stopOnce     sync.Once
}

// New creates an unstarted session.
func New(cfg *config.Config, engine *humanoid.Engine, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		browserCfg: cfg.Browser,
		discordCfg: cfg.Discord,
		engine:     engine,
		logger:     logger.Named("session"),
	}
}

// Remote reports whether the session is attached to a browser it does not own.
func (s *Session) Remote() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

// Context returns the page context, or nil before Start.
func (s *Session) Context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Session) opTimeout() time.Duration {
	if s.discordCfg.Timeout > 0 {
		return s.discordCfg.Timeout
	}
	return 30 * time.Second
}

// Start attaches to the browser at endpoint, or launches a local Chrome when endpoint is empty.
func (s *Session) Start(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	started := s.ctx != nil
	s.mu.Unlock()
	if started {
		return checkerr.New(checkerr.KindBrowser, "session.Start", "session already started")
	}

	var err error
	if strings.TrimSpace(endpoint) != "" {
		err = s.startRemote(ctx, endpoint)
	} else {
		err = s.startLocal(ctx)
	}
	if err != nil {
		s.Stop()
		return err
	}
	return nil
}

func (s *Session) startRemote(ctx context.Context, endpoint string) error {
	base, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return checkerr.Browser(err, "session.Start", "invalid CDP endpoint")
	}
	log := s.logger.With(zap.String("endpoint", base))
	log.Info("Attaching to remote browser.")

	lookupCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()

	dt := NewDevTools(base, s.opTimeout())
	version, err := dt.Version(lookupCtx)
	if err != nil {
		return checkerr.Browser(err, "session.Start", "failed to reach DevTools endpoint")
	}
	wsURL := version.WebSocketDebuggerURL
	if wsURL == "" {
		wsURL = strings.Replace(base, "http", "ws", 1)
	}

	var contextOpts []chromedp.ContextOption
	targets, err := dt.Targets(lookupCtx)
	if err != nil {
		log.Warn("Could not list targets; opening a new page.", zap.Error(err))
	} else if page, ok := FirstPage(targets); ok {
		log.Debug("Reusing existing page.", zap.String("target_id", page.ID), zap.String("url", page.URL))
		contextOpts = append(contextOpts, chromedp.WithTargetID(target.ID(page.ID)))
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, wsURL)
	pageCtx, pageCancel := chromedp.NewContext(allocCtx, contextOpts...)

	s.mu.Lock()
	s.remote = true
	s.ctx = pageCtx
	s.closePage = pageCancel
	s.closeDriver = allocCancel
	s.mu.Unlock()

	if err := attach(pageCtx, pageCancel, s.opTimeout()); err != nil {
		return checkerr.Browser(err, "session.Start", "failed to attach to remote page")
	}
	// Remote profiles keep their own fingerprint; only the init script is added.
	if err := s.runSetup(ctx, stealth.Apply(stealth.Persona{}, s.logger)); err != nil {
		return checkerr.Browser(err, "session.Start", "failed to prepare remote page")
	}
	log.Info("Remote browser session ready.")
	return nil
}

func (s *Session) startLocal(ctx context.Context) error {
	viewport := s.engine.RandomViewport()
	userAgent := s.engine.RandomUserAgent()
	log := s.logger.With(zap.Int("width", viewport.Width), zap.Int("height", viewport.Height))
	log.Info("Launching local browser.")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.allocatorOptions(userAgent, viewport.Width, viewport.Height)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s.mu.Lock()
	s.closeDriver = allocCancel
	s.closeBrowser = browserCancel
	s.mu.Unlock()

	if err := attach(browserCtx, browserCancel, s.opTimeout()); err != nil {
		return checkerr.Browser(err, "session.Start", "browser failed to start")
	}

	pageCtx, pageCancel := chromedp.NewContext(browserCtx)
	s.mu.Lock()
	s.ctx = pageCtx
	s.closePage = pageCancel
	s.mu.Unlock()
	if err := attach(pageCtx, pageCancel, s.opTimeout()); err != nil {
		return checkerr.Browser(err, "session.Start", "failed to open page")
	}

	persona := stealth.LocalPersona(userAgent, s.browserCfg.Locale, s.browserCfg.Timezone)
	setup := chromedp.Tasks{
		stealth.Apply(persona, s.logger),
		emulation.SetDeviceMetricsOverride(int64(viewport.Width), int64(viewport.Height), 1, false),
		browser.GrantPermissions([]browser.PermissionType{
			browser.PermissionTypeGeolocation,
			browser.PermissionTypeNotifications,
		}),
	}
	if err := s.runSetup(ctx, setup); err != nil {
		return checkerr.Browser(err, "session.Start", "failed to prepare local page")
	}
	log.Info("Local browser session ready.")
	return nil
}

// attach performs the first Run on a chromedp context, which binds the browser
// connection to ctx itself. A derived timeout context would tear it down on return.
func attach(ctx context.Context, cancel context.CancelFunc, timeout time.Duration) error {
	timer := time.AfterFunc(timeout, cancel)
	defer timer.Stop()
	return chromedp.Run(ctx)
}

func (s *Session) runSetup(ctx context.Context, tasks chromedp.Tasks) error {
	setupCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	return s.runActions(setupCtx, tasks)
}

// allocatorOptions assembles launch flags for a local Chrome that hides its automation markers.
func (s *Session) allocatorOptions(userAgent string, width, height int) []chromedp.ExecAllocatorOption {
	// Flags are a map, so these override the defaults. A false boolean drops the flag.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", s.browserCfg.Headless),
	)

	opts = append(opts,
		chromedp.Flag("ignore-certificate-errors", s.browserCfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("lang", s.browserCfg.Locale),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(width, height),
	)
	if s.browserCfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.browserCfg.ExecPath))
	}

	for _, arg := range s.browserCfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// Stop releases the page, the browser (local sessions only) and the driver, in
// that order. It is safe to call more than once and never fails.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		remote := s.remote
		closePage, closeBrowser, closeDriver := s.closePage, s.closeBrowser, s.closeDriver
		s.mu.Unlock()

		s.guard("close page", closePage)
		if !remote {
			s.guard("close browser", closeBrowser)
		}
		s.guard("shut down driver", closeDriver)

		s.mu.Lock()
		s.ctx = nil
		s.mu.Unlock()
		s.logger.Info("Browser session stopped.", zap.Bool("remote", remote))
	})
}

// guard runs one teardown step, logging instead of propagating any failure.
func (s *Session) guard(step string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Teardown step panicked.", zap.String("step", step), zap.Any("panic", r))
		}
	}()
	fn()
	s.logger.Debug("Teardown step done.", zap.String("step", step))
}

// runActions executes actions against the page, bounded by both the page
// lifetime and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	pageCtx := s.Context()
	if pageCtx == nil {
		return checkerr.New(checkerr.KindBrowser, "session", "page not initialized")
	}
	if pageCtx.Err() != nil {
		return checkerr.Wrap(pageCtx.Err(), checkerr.KindBrowser, "session", "page closed")
	}
	runCtx, cancel := CombineContext(pageCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}
