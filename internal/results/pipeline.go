// File: internal/results/pipeline.go
package results

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"go.uber.org/zap"
)

// Sink persists result records. Implementations must be safe for concurrent use.
type Sink interface {
	Save(ctx context.Context, rec schemas.Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec schemas.Record) error

// Save implements Sink.
func (f SinkFunc) Save(ctx context.Context, rec schemas.Record) error { return f(ctx, rec) }

// MultiSink writes every record to all of its sinks and joins their errors.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, rec schemas.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pipeline turns role results into records and hands them to a sink.
type Pipeline struct {
	sink   Sink
	logger *zap.Logger
}

// NewPipeline creates a new results pipeline.
func NewPipeline(sink Sink, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		sink:   sink,
		logger: logger.Named("results_pipeline"),
	}
}

// PersistStats summarizes one Persist call.
type PersistStats struct {
	Saved   int
	Failed  int
	Skipped int
}

// Persist saves one record per result. A failed save is logged and counted;
// it never stops the remaining results from being written.
func (p *Pipeline) Persist(ctx context.Context, checkerSerial string, res []schemas.RoleResult, save map[string]schemas.SaveProfile) PersistStats {
	var stats PersistStats
	for _, r := range res {
		if strings.TrimSpace(r.Username) == "" {
			stats.Skipped++
			continue
		}
		rec := ToRecord(r, checkerSerial, save)
		if err := p.sink.Save(ctx, rec); err != nil {
			stats.Failed++
			p.logger.Error("Failed to save result",
				zap.String("username", rec.Username),
				zap.String("server", rec.ServerURL),
				zap.Error(err))
			continue
		}
		stats.Saved++
		p.logger.Debug("Result saved",
			zap.String("username", rec.Username),
			zap.Bool("found", rec.Found),
			zap.String("roles", rec.Roles))
	}
	if stats.Saved+stats.Failed+stats.Skipped > 0 {
		p.logger.Info("Results persisted",
			zap.Int("saved", stats.Saved),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped))
	}
	return stats
}
