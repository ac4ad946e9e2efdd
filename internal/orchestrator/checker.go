package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/browser/session"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
	"github.com/xkilldash9x/rolecheck/internal/discord"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
)

// releaseTimeout bounds the best-effort provisioning release.
const releaseTimeout = 15 * time.Second

// Checker is an authorized browser bound to one profile.
type Checker interface {
	NavigateToServer(ctx context.Context, serverURL string) error
	GetUserRoles(ctx context.Context, username string) ([]string, error)
	// Close releases the browser. Callers invoke it exactly once.
	Close()
}

// Factory opens an authorized Checker for a profile.
type Factory interface {
	Open(ctx context.Context, profile schemas.Profile) (Checker, error)
}

// Provisioner starts and stops remote browser profiles. *adspower.Client implements it.
type Provisioner interface {
	OpenSession(ctx context.Context, serial string) (string, error)
	CloseSession(ctx context.Context, serial string) (bool, error)
}

// BrowserFactory opens real browser sessions: a provisioned remote profile, or a
// local Chrome when no provisioner is set.
type BrowserFactory struct {
	cfg         *config.Config
	provisioner Provisioner
	logger      *zap.Logger
}

var _ Factory = (*BrowserFactory)(nil)

// NewBrowserFactory creates a factory. A nil provisioner launches local browsers.
func NewBrowserFactory(cfg *config.Config, provisioner Provisioner, logger *zap.Logger) *BrowserFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserFactory{cfg: cfg, provisioner: provisioner, logger: logger}
}

// Open provisions the profile, attaches a session and logs in.
func (f *BrowserFactory) Open(ctx context.Context, profile schemas.Profile) (Checker, error) {
	serial := profile.SerialNumber
	log := f.logger.With(zap.String("serial_number", serial))

	endpoint := ""
	if f.provisioner != nil {
		url, err := f.provisioner.OpenSession(ctx, serial)
		if err != nil {
			// The profile may have started before the call failed.
			releaseProfile(f.provisioner, serial, log)
			return nil, err
		}
		endpoint = url
	}

	engine := humanoid.New(f.cfg.Humanoid, log)
	sess := session.New(f.cfg, engine, log)
	bc := &browserChecker{
		sess:        sess,
		provisioner: f.provisioner,
		serial:      serial,
		logger:      log,
	}
	if err := sess.Start(ctx, endpoint); err != nil {
		bc.Close()
		return nil, err
	}
	bc.Controller = discord.NewController(sess, engine, f.cfg.Discord, log)

	if err := bc.EnsureAuthorized(ctx, profile); err != nil {
		bc.Close()
		return nil, authFailure(err)
	}
	return bc, nil
}

// authFailure classifies a login error. A lost browser keeps its own kind so
// callers do not mistake it for rejected credentials.
func authFailure(err error) error {
	if checkerr.Is(err, checkerr.KindAuthorization) || checkerr.IsConnectionFatal(err) {
		return err
	}
	return checkerr.Wrap(err, checkerr.KindAuthorization, "orchestrator.Open", "authorization failed")
}

// releaseProfile asks the provisioner to stop a profile, logging any failure.
func releaseProfile(p Provisioner, serial string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if _, err := p.CloseSession(ctx, serial); err != nil {
		logger.Warn("Failed to release browser profile.", zap.Error(err))
	}
}

// browserChecker ties a controller to the session and provisioned profile it runs on.
type browserChecker struct {
	*discord.Controller

	sess        *session.Session
	provisioner Provisioner
	serial      string
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Close stops the session, then asks the provisioner to stop the profile.
func (b *browserChecker) Close() {
	b.closeOnce.Do(func() {
		b.sess.Stop()
		if b.provisioner != nil {
			releaseProfile(b.provisioner, b.serial, b.logger)
		}
	})
}
