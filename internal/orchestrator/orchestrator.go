// Package orchestrator runs role checks for every (server, username) pair,
// either on one browser or spread across a pool of profiles.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
	"github.com/xkilldash9x/rolecheck/internal/results"
)

// Source supplies the run's inputs. *sheets.Workbook implements it.
type Source interface {
	ServerLinks(ctx context.Context) ([]string, error)
	Usernames(ctx context.Context) ([]string, error)
	Profiles(ctx context.Context) ([]schemas.Profile, error)
	CheckProfiles(ctx context.Context) (map[string]schemas.SaveProfile, error)
}

// Archive receives every record of a run in one batch after the run ends.
type Archive interface {
	SaveBatch(ctx context.Context, recs []schemas.Record) error
}

// Mode names how a run was executed.
type Mode string

const (
	ModeSerial   Mode = "serial"
	ModeParallel Mode = "parallel"
)

// Summary describes a finished run.
type Summary struct {
	RunID      uuid.UUID
	Mode       Mode
	Servers    int
	Usernames  int
	Checked    int
	Found      int
	Failed     int
	Saved      int
	SaveFailed int
	Outcomes   []schemas.TaskOutcome
	Duration   time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithArchive adds an archive that receives all records once the run ends.
func WithArchive(a Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithEngine replaces the delay engine used between checks.
func WithEngine(e *humanoid.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// Orchestrator manages the lifecycle of a check run.
type Orchestrator struct {
	cfg      config.ThreadingConfig
	logger   *zap.Logger
	source   Source
	factory  Factory
	pipeline *results.Pipeline
	archive  Archive
	engine   *humanoid.Engine

	mu      sync.Mutex
	summary Summary
	records []schemas.Record
}

// New creates an Orchestrator. Every dependency is required.
func New(cfg *config.Config, logger *zap.Logger, source Source, factory Factory, sink results.Sink, opts ...Option) (*Orchestrator, error) {
	if cfg == nil || logger == nil || source == nil || factory == nil || sink == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:      cfg.Threading,
		logger:   logger.Named("orchestrator"),
		source:   source,
		factory:  factory,
		pipeline: results.NewPipeline(sink, logger),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = humanoid.New(cfg.Humanoid, logger)
	}
	return o, nil
}

// Run loads the inputs, checks every pair and returns what happened. An error is
// returned only when the run could not start or the single serial profile could
// not be authorized.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	runID := uuid.New()
	o.mu.Lock()
	o.summary = Summary{RunID: runID}
	o.records = nil
	o.mu.Unlock()
	log := o.logger.With(zap.String("run_id", runID.String()))

	servers, err := o.source.ServerLinks(ctx)
	if err != nil {
		return o.finish(ctx, start), err
	}
	usernames, err := o.source.Usernames(ctx)
	if err != nil {
		return o.finish(ctx, start), err
	}
	o.mu.Lock()
	o.summary.Servers = len(servers)
	o.summary.Usernames = len(usernames)
	o.mu.Unlock()
	if len(servers) == 0 || len(usernames) == 0 {
		log.Warn("Nothing to check.", zap.Int("servers", len(servers)), zap.Int("usernames", len(usernames)))
		return o.finish(ctx, start), nil
	}

	save, err := o.source.CheckProfiles(ctx)
	if err != nil {
		log.Error("Failed to load save profiles, keying results by username only.", zap.Error(err))
		save = make(map[string]schemas.SaveProfile, len(usernames))
		for _, u := range usernames {
			save[u] = schemas.SaveProfile{Username: u}
		}
	}
	profiles, err := o.source.Profiles(ctx)
	if err != nil {
		return o.finish(ctx, start), err
	}

	log.Info("Starting role check run.",
		zap.Int("servers", len(servers)),
		zap.Int("usernames", len(usernames)),
		zap.Int("profiles", len(profiles)),
		zap.Bool("parallel", o.cfg.Enabled))

	if o.cfg.Enabled {
		if len(profiles) > 0 {
			o.runParallel(ctx, profiles, servers, usernames, save)
			return o.finish(ctx, start), nil
		}
		log.Warn("No valid profiles for parallel mode, falling back to serial mode.")
	}
	err = o.runSerial(ctx, profiles, servers, usernames, save)
	return o.finish(ctx, start), err
}

// runSerial checks every server in order on the first profile's browser.
func (o *Orchestrator) runSerial(ctx context.Context, profiles []schemas.Profile, servers, usernames []string, save map[string]schemas.SaveProfile) error {
	o.setMode(ModeSerial)
	if len(profiles) == 0 {
		return checkerr.New(checkerr.KindConfiguration, "orchestrator.Run", "no valid profile to check with")
	}
	profile := profiles[0]

	checker, err := o.factory.Open(ctx, profile)
	if err != nil {
		o.logger.Error("Could not open an authorized browser.", zap.String("serial_number", profile.SerialNumber), zap.Error(err))
		for _, server := range servers {
			o.persist(ctx, profile.SerialNumber, failAll(server, usernames, err), save)
		}
		return err
	}
	defer checker.Close()

	for _, server := range servers {
		if ctx.Err() != nil {
			break
		}
		res := o.CheckServer(ctx, checker, profile, server, usernames)
		o.persist(ctx, profile.SerialNumber, res, save)
	}
	return nil
}

func (o *Orchestrator) setMode(m Mode) {
	o.mu.Lock()
	o.summary.Mode = m
	o.mu.Unlock()
}

// persist saves res and tallies it. Saving outlives cancellation of ctx so
// finished checks are not lost on interrupt.
func (o *Orchestrator) persist(ctx context.Context, serial string, res []schemas.RoleResult, save map[string]schemas.SaveProfile) {
	saveCtx := context.WithoutCancel(ctx)
	stats := o.pipeline.Persist(saveCtx, serial, res, save)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary.Saved += stats.Saved
	o.summary.SaveFailed += stats.Failed
	for _, r := range res {
		if strings.TrimSpace(r.Username) == "" {
			continue
		}
		o.summary.Checked++
		switch {
		case r.Error != "":
			o.summary.Failed++
		case r.Found:
			o.summary.Found++
		}
		if o.archive != nil {
			o.records = append(o.records, results.ToRecord(r, serial, save))
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, start time.Time) Summary {
	o.mu.Lock()
	recs := o.records
	o.records = nil
	o.summary.Duration = time.Since(start)
	sum := o.summary
	o.mu.Unlock()

	if o.archive != nil && len(recs) > 0 {
		if err := o.archive.SaveBatch(context.WithoutCancel(ctx), recs); err != nil {
			o.logger.Error("Failed to archive results.", zap.Int("records", len(recs)), zap.Error(err))
		} else {
			o.logger.Info("Results archived.", zap.Int("records", len(recs)))
		}
	}

	o.logger.Info("Role check run finished.",
		zap.String("run_id", sum.RunID.String()),
		zap.String("mode", string(sum.Mode)),
		zap.Int("checked", sum.Checked),
		zap.Int("found", sum.Found),
		zap.Int("failed", sum.Failed),
		zap.Int("saved", sum.Saved),
		zap.Int("save_failed", sum.SaveFailed),
		zap.Duration("duration", sum.Duration))
	return sum
}
