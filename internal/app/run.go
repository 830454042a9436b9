package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/notify"
	"github.com/voxpipe/voxpipe/internal/policy"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/scheduler"
	"github.com/voxpipe/voxpipe/internal/sge"
	"github.com/voxpipe/voxpipe/internal/task"
	"github.com/voxpipe/voxpipe/internal/workflow"
)

// notifyConnectTimeout bounds the initial handshake with the run-event
// endpoint. A notify URL that cannot be reached at startup is treated as a
// configuration error rather than silently dropped.
const notifyConnectTimeout = 10 * time.Second

// Run executes the pipeline for the configured sessions and actions. It
// returns an error when the run cannot start, or when any task ends in the
// failed state so the entrypoint exits non-zero.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	plan, err := workflow.Build(workflow.BuildInput{
		Sessions:  a.cfg.Sessions,
		Actions:   a.cfg.Actions,
		Units:     a.units,
		WorkRoot:  a.cfg.WorkDir,
		InputRoot: a.cfg.InputDir,
	})
	if err != nil {
		return fmt.Errorf("failed to build workflow plan: %w", err)
	}
	a.logger.Debug("Workflow plan built.", "tasks", plan.Len())

	local := backend.NewLocal(a.units)
	var grid backend.Backend
	if !a.cfg.Local {
		ge, err := backend.NewGridEngine(sge.NewExecClient(nil), a.cfg.WorkDir)
		if err != nil {
			return fmt.Errorf("failed to initialize the batch backend: %w", err)
		}
		grid = ge
	}

	var notifier notify.Notifier = notify.Nop{}
	if a.cfg.NotifyURL != "" {
		sio, err := notify.NewSocketIO(ctx, a.cfg.NotifyURL, notifyConnectTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to the notify endpoint: %w", err)
		}
		defer sio.Close()
		notifier = sio
	}

	sched := scheduler.New(scheduler.Config{
		Resolver: policy.NewResolver(a.policies),
		Tracker:  resume.NewTracker(a.cfg.Resume),
		Local:    local,
		Grid:     grid,
		Notifier: notifier,
		Options: scheduler.Options{
			ConcurrencyLimit: a.cfg.Concurrency,
			PollInterval:     a.cfg.PollInterval,
			Local:            a.cfg.Local,
		},
	})

	summary, err := sched.Run(ctx, plan)
	if err != nil {
		return fmt.Errorf("pipeline run aborted: %w", err)
	}

	if path, err := a.writeSummary(summary); err != nil {
		a.logger.Warn("Could not write the run summary file.", "error", err)
	} else {
		a.logger.Info("Run summary written.", "path", path)
	}

	a.report(summary)

	if failed := summary.Counts()[task.Failed]; failed > 0 {
		return fmt.Errorf("run %s finished with %d failed tasks", summary.RunID, failed)
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

// report logs the closing audit: every failed task with its cause, and the
// skipped and succeeded names so resumed runs can be traced afterwards.
func (a *App) report(summary *scheduler.RunSummary) {
	var succeeded, skipped []string
	for _, t := range summary.Tasks {
		switch t.State {
		case task.Failed:
			a.logger.Error("Task did not complete.", "task", t.Name, "cause", t.Cause)
		case task.Skipped:
			skipped = append(skipped, string(t.Name))
		case task.Succeeded:
			succeeded = append(succeeded, string(t.Name))
		}
	}
	if len(skipped) > 0 {
		a.logger.Info("Tasks skipped with outputs in place.", "tasks", strings.Join(skipped, ", "))
	}
	if len(succeeded) > 0 {
		a.logger.Info("Tasks completed.", "tasks", strings.Join(succeeded, ", "))
	}
}
