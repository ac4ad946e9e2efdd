package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
)

// runParallel assigns one task per server, round-robin over profiles, and runs
// them on a bounded pool. A failed task never stops the others.
func (o *Orchestrator) runParallel(ctx context.Context, profiles []schemas.Profile, servers, usernames []string, save map[string]schemas.SaveProfile) {
	o.setMode(ModeParallel)

	workers := min(o.cfg.MaxWorkers, len(profiles))
	if workers < 1 {
		workers = 1
	}
	if workers < o.cfg.MaxWorkers {
		o.logger.Warn("Fewer profiles than requested workers.",
			zap.Int("profiles", len(profiles)),
			zap.Int("requested", o.cfg.MaxWorkers),
			zap.Int("workers", workers))
	}

	var tasks []schemas.WorkerTask
	for i, server := range servers {
		server = strings.TrimSpace(server)
		if server == "" {
			o.logger.Warn("Skipping empty server URL.", zap.Int("position", i))
			continue
		}
		p := profiles[len(tasks)%len(profiles)]
		tasks = append(tasks, schemas.NewWorkerTask(p, server, usernames, save))
	}
	if len(tasks) == 0 {
		o.logger.Warn("No valid tasks to run.")
		return
	}

	perProfile := int64(o.cfg.MaxTasksPerProfile)
	if perProfile < 1 {
		perProfile = 1
	}
	sems := make(map[string]*semaphore.Weighted, len(profiles))
	for _, p := range profiles {
		if _, ok := sems[p.SerialNumber]; !ok {
			sems[p.SerialNumber] = semaphore.NewWeighted(perProfile)
		}
	}

	o.logger.Info("Running tasks in parallel.", zap.Int("tasks", len(tasks)), zap.Int("workers", workers))
	outcomes := make([]schemas.TaskOutcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, task := range tasks {
		g.Go(func() error {
			outcomes[i] = o.runTask(ctx, task, sems[task.Profile.SerialNumber])
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, oc := range outcomes {
		if oc.Success {
			succeeded++
		}
	}
	o.logger.Info("Parallel run complete.", zap.Int("succeeded", succeeded), zap.Int("failed", len(outcomes)-succeeded))

	o.mu.Lock()
	o.summary.Outcomes = outcomes
	o.mu.Unlock()
}

// runTask checks one server with the task's profile. The checker is closed
// exactly once, also when the check panics.
func (o *Orchestrator) runTask(ctx context.Context, task schemas.WorkerTask, sem *semaphore.Weighted) (out schemas.TaskOutcome) {
	start := time.Now()
	out = schemas.TaskOutcome{
		TaskID:    task.ID,
		ServerURL: task.ServerURL,
		Serial:    task.Profile.SerialNumber,
	}
	log := o.logger.With(
		zap.String("task_id", task.ID.String()),
		zap.String("server_url", task.ServerURL),
		zap.String("serial_number", task.Profile.SerialNumber))

	fail := func(err error) {
		out.Success = false
		out.Error = err.Error()
		out.ErrorKind = checkerr.KindOf(err).String()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panicked.", zap.Any("panic", r), zap.Stack("stack"))
			fail(checkerr.Newf(checkerr.KindOrchestration, "orchestrator.runTask", "panic: %v", r))
		}
		out.Duration = time.Since(start)
	}()

	// A task that never reaches the server still owes one error row per user.
	abandon := func(err error) schemas.TaskOutcome {
		res := failAll(task.ServerURL, task.Usernames, err)
		o.persist(ctx, task.Profile.SerialNumber, res, task.SaveProfiles)
		out.Checked = len(res)
		fail(err)
		return out
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return abandon(err)
	}
	defer sem.Release(1)

	checker, err := o.factory.Open(ctx, task.Profile)
	if err != nil {
		log.Error("Task could not open an authorized browser.", zap.Error(err))
		return abandon(err)
	}
	defer checker.Close()

	res := o.CheckServer(ctx, checker, task.Profile, task.ServerURL, task.Usernames)
	o.persist(ctx, task.Profile.SerialNumber, res, task.SaveProfiles)

	out.Checked = len(res)
	out.Success = true
	if err := ctx.Err(); err != nil {
		fail(fmt.Errorf("interrupted: %w", err))
	}
	log.Info("Task finished.", zap.Int("checked", out.Checked), zap.Bool("success", out.Success))
	return out
}
