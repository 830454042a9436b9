// Package scheduler drives a workflow plan to completion. A single
// coordinating loop owns all task state; submission backends execute tasks
// and report observations back through one intake channel, so there is
// exactly one writer and no locking on run state.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/notify"
	"github.com/voxpipe/voxpipe/internal/policy"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
	"github.com/voxpipe/voxpipe/internal/workflow"
)

// Defaults for unset Options fields.
const (
	DefaultConcurrencyLimit = 4
	DefaultRetryLimit       = 3
	DefaultRetryMinBackoff  = 500 * time.Millisecond
	DefaultPollInterval     = 5 * time.Second
)

// Options tune one run.
type Options struct {
	// ConcurrencyLimit caps tasks in the submitted or running states across
	// all backends. Ready tasks beyond the cap wait in FIFO order.
	ConcurrencyLimit int
	// RetryLimit is the maximum number of submission attempts per task.
	RetryLimit int
	// RetryMinBackoff is the initial delay between submission attempts.
	RetryMinBackoff time.Duration
	// PollInterval is the fixed delay between status polls of asynchronous
	// backends.
	PollInterval time.Duration
	// Local forces every task onto the local backend regardless of policy.
	Local bool
}

// Config assembles a scheduler's collaborators.
type Config struct {
	Resolver *policy.Resolver
	Tracker  *resume.Tracker
	// Local runs tasks in-process. Required.
	Local backend.Backend
	// Grid runs submit-eligible tasks on the batch cluster. Optional; when
	// nil everything runs locally.
	Grid     backend.Backend
	Notifier notify.Notifier
	Options  Options
}

// Scheduler executes workflow plans. It is stateless between runs; all
// per-run state lives inside Run.
type Scheduler struct {
	resolver *policy.Resolver
	tracker  *resume.Tracker
	local    backend.Backend
	grid     backend.Backend
	notifier notify.Notifier
	opts     Options
}

// New creates a scheduler, filling unset options with defaults.
func New(cfg Config) *Scheduler {
	opts := cfg.Options
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = DefaultRetryLimit
	}
	if opts.RetryMinBackoff <= 0 {
		opts.RetryMinBackoff = DefaultRetryMinBackoff
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = policy.NewResolver(nil)
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = resume.NewTracker(false)
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Scheduler{
		resolver: resolver,
		tracker:  tracker,
		local:    cfg.Local,
		grid:     cfg.Grid,
		notifier: notifier,
		opts:     opts,
	}
}

// record is the coordinating loop's private state for one task. Only the
// loop goroutine reads or writes it.
type record struct {
	desc    *task.Descriptor
	pol     policy.Resource
	state   task.State
	cause   error
	backend string
	retries int
	// pending counts dependencies not yet satisfied.
	pending  int
	started  time.Time
	finished time.Time
}

// eventKind enumerates worker observations.
type eventKind int

const (
	eventRetry eventKind = iota
	eventRunning
	eventSucceeded
	eventFailed
)

// event is one worker observation delivered to the coordinating loop.
type event struct {
	name  task.Name
	kind  eventKind
	cause error
}

// Run executes the plan and returns a summary of every task's terminal
// state. Policy resolution happens up front, before anything is submitted; a
// malformed policy aborts the run with an error and no summary. After
// submission begins, task failures no longer abort the run: they fail their
// descendants and the rest of the plan continues, so the summary is the
// authoritative outcome.
func (s *Scheduler) Run(ctx context.Context, plan *workflow.Plan) (*RunSummary, error) {
	runID := uuid.New().String()
	logger := ctxlog.FromContext(ctx).With("runID", runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	order := plan.Order()

	records := make(map[task.Name]*record, len(order))
	for _, name := range order {
		desc, ok := plan.Task(name)
		if !ok {
			return nil, fmt.Errorf("plan order names unknown task %s", name)
		}
		pol, err := s.resolver.Resolve(name, policy.WorkflowContext{
			Workflow: desc.Workflow,
			ToolKey:  desc.ToolKey,
		})
		if err != nil {
			return nil, err
		}
		records[name] = &record{desc: desc, pol: pol, state: task.Pending, pending: len(desc.Deps)}
	}

	startedAt := time.Now()
	logger.Info("Run started.", "tasks", len(order), "concurrencyLimit", s.opts.ConcurrencyLimit)
	s.notifier.RunStarted(ctx, runID, len(order))

	var readyQ []task.Name
	for _, name := range order {
		if records[name].pending == 0 {
			readyQ = append(readyQ, name)
		}
	}

	events := make(chan event, len(order)*4+16)
	inFlight := 0
	finishedCount := 0

	// finish marks a task terminal. It is the only place run state reaches a
	// terminal value.
	finish := func(name task.Name, state task.State, cause error) {
		rec := records[name]
		rec.state = state
		rec.cause = cause
		rec.finished = time.Now()
		finishedCount++
		causeMsg := ""
		if cause != nil {
			causeMsg = cause.Error()
		}
		s.notifier.TaskFinished(ctx, runID, string(name), state.String(), causeMsg)
	}

	// unblock releases dependents of a satisfied task into the ready queue.
	unblock := func(name task.Name) {
		dependents, err := plan.Graph().Dependents(string(name))
		if err != nil {
			logger.Error("Dependent lookup failed.", "task", name, "error", err)
			return
		}
		for _, dep := range dependents {
			rec := records[task.Name(dep)]
			rec.pending--
			if rec.pending == 0 && rec.state == task.Pending {
				readyQ = append(readyQ, task.Name(dep))
			}
		}
	}

	// failDescendants marks every not-yet-started descendant of a failed
	// task as failed without it ever entering the submitted state.
	failDescendants := func(name task.Name) {
		descendants, err := plan.Graph().Descendants(string(name))
		if err != nil {
			logger.Error("Descendant lookup failed.", "task", name, "error", err)
			return
		}
		for _, d := range descendants {
			dn := task.Name(d)
			if records[dn].state != task.Pending {
				continue
			}
			logger.Warn("Failing task, upstream failed.", "task", dn, "upstream", name)
			finish(dn, task.Failed, fmt.Errorf("not run: upstream %s failed", name))
		}
	}

	// dispatch starts ready tasks until the concurrency ceiling is reached.
	// The resume check runs here, immediately before submission.
	dispatch := func() {
		for inFlight < s.opts.ConcurrencyLimit && len(readyQ) > 0 {
			name := readyQ[0]
			readyQ = readyQ[1:]
			rec := records[name]
			if rec.state != task.Pending {
				continue
			}

			skip, err := s.tracker.ShouldSkip(ctx, string(name), rec.desc.Outputs, rec.pol.Overwrite)
			if err != nil {
				logger.Warn("Resume check failed, task will run.", "task", name, "error", err)
			}
			if skip {
				logger.Info("Skipping task, outputs already present.", "task", name)
				finish(name, task.Skipped, nil)
				unblock(name)
				continue
			}

			be := s.backendFor(rec)
			rec.state = task.Submitted
			rec.backend = be.Name()
			rec.started = time.Now()
			inFlight++
			logger.Info("Submitting task.", "task", name, "backend", be.Name())
			go s.runTask(ctx, be, rec.desc, rec.pol, events)
		}
	}

	dispatch()

	done := ctx.Done()
	for finishedCount < len(order) {
		select {
		case ev := <-events:
			rec := records[ev.name]
			switch ev.kind {
			case eventRetry:
				rec.retries++
				logger.Warn("Submission failed, will retry.", "task", ev.name, "attempt", rec.retries, "error", ev.cause)
			case eventRunning:
				if rec.state == task.Submitted {
					rec.state = task.Running
					logger.Info("Task running.", "task", ev.name, "backend", rec.backend)
				}
			case eventSucceeded:
				inFlight--
				finish(ev.name, task.Succeeded, nil)
				logger.Info("Task succeeded.", "task", ev.name, "duration", rec.finished.Sub(rec.started).Round(time.Millisecond))
				unblock(ev.name)
				dispatch()
			case eventFailed:
				inFlight--
				finish(ev.name, task.Failed, ev.cause)
				logger.Error("Task failed.", "task", ev.name, "error", ev.cause)
				failDescendants(ev.name)
				dispatch()
			}
		case <-done:
			// Stop handing out work and fail everything still pending.
			// In-flight tasks observe the same cancellation and report back
			// through the event channel, which drains the loop.
			done = nil
			logger.Warn("Run cancelled, waiting for in-flight tasks.", "inFlight", inFlight)
			for _, name := range order {
				if records[name].state == task.Pending {
					finish(name, task.Failed, fmt.Errorf("%w: run aborted before task started", task.ErrCancelled))
				}
			}
		}
	}

	finishedAt := time.Now()
	summary := &RunSummary{RunID: runID, Started: startedAt, Finished: finishedAt}
	for _, name := range order {
		rec := records[name]
		result := TaskResult{
			Name:    name,
			State:   rec.state,
			Backend: rec.backend,
			Retries: rec.retries,
		}
		if rec.cause != nil {
			result.Cause = rec.cause.Error()
		}
		if !rec.started.IsZero() {
			result.Duration = rec.finished.Sub(rec.started)
		}
		summary.Tasks = append(summary.Tasks, result)
	}

	counts := summary.Counts()
	s.notifier.RunFinished(ctx, runID, counts[task.Failed], summary.Elapsed())
	logger.Info("Run finished.",
		"succeeded", counts[task.Succeeded],
		"skipped", counts[task.Skipped],
		"failed", counts[task.Failed],
		"elapsed", summary.Elapsed().Round(time.Millisecond))
	return summary, nil
}

// backendFor picks where a task executes. Policy opts a task into cluster
// submission; the local backend remains the default and the forced choice
// for local-only units, local runs, and runs without a cluster.
func (s *Scheduler) backendFor(rec *record) backend.Backend {
	if s.opts.Local || rec.desc.LocalOnly || !rec.pol.Submit || s.grid == nil {
		return s.local
	}
	return s.grid
}
