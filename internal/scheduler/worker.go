package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/policy"
	"github.com/voxpipe/voxpipe/internal/task"
)

// cancelGrace bounds the best-effort backend cancel when a task is aborted;
// the run context may already be dead at that point.
const cancelGrace = 10 * time.Second

// runTask owns one task from submission to terminal state. It reports every
// observation into the coordinating loop's event channel and never touches
// shared run state directly.
func (s *Scheduler) runTask(ctx context.Context, be backend.Backend, desc *task.Descriptor, pol policy.Resource, events chan<- event) {
	name := desc.Name
	logger := ctxlog.FromContext(ctx).With("task", name, "backend", be.Name())

	// The wall-clock window opens at submission. The batch queue enforces
	// the per-host limit itself; this deadline is the scheduler-side
	// backstop and the only enforcement for local execution.
	limit, hasLimit := pol.WallClock()
	var taskCtx context.Context
	var cancel context.CancelFunc
	if hasLimit {
		taskCtx, cancel = context.WithTimeout(ctx, limit)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// The local backend executes inside Submit, so the task is running the
	// moment it is handed over.
	reportedRunning := be == s.local
	if reportedRunning {
		events <- event{name: name, kind: eventRunning}
	}

	handle, err := s.submit(taskCtx, be, desc, pol, events)
	if err != nil {
		events <- event{name: name, kind: eventFailed, cause: s.submitFailure(taskCtx, err, limit)}
		return
	}
	logger.Debug("Submission accepted.", "id", handle.ID())

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		st, err := be.Poll(taskCtx, handle)
		if err != nil {
			events <- event{name: name, kind: eventFailed, cause: fmt.Errorf("polling %s: %w", handle.ID(), err)}
			return
		}
		switch st.State {
		case task.Succeeded:
			events <- event{name: name, kind: eventSucceeded}
			return
		case task.Failed:
			events <- event{name: name, kind: eventFailed, cause: st.Cause}
			return
		case task.Running:
			if !reportedRunning {
				reportedRunning = true
				events <- event{name: name, kind: eventRunning}
			}
		}

		select {
		case <-ticker.C:
		case <-taskCtx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cancelGrace)
			if err := be.Cancel(stopCtx, handle); err != nil {
				logger.Warn("Backend cancel failed.", "id", handle.ID(), "error", err)
			}
			stopCancel()
			events <- event{name: name, kind: eventFailed, cause: s.abortCause(taskCtx, limit)}
			return
		}
	}
}

// submit hands the invocation to the backend, retrying transient submission
// failures with exponential backoff. Any error that does not wrap
// task.ErrSubmission is permanent and fails immediately.
func (s *Scheduler) submit(ctx context.Context, be backend.Backend, desc *task.Descriptor, pol policy.Resource, events chan<- event) (backend.Handle, error) {
	inv := desc.Invocation(pol.ExtraParams)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.opts.RetryMinBackoff

	operation := func() (backend.Handle, error) {
		h, err := be.Submit(ctx, inv, pol)
		if err != nil && !errors.Is(err, task.ErrSubmission) {
			return nil, backoff.Permanent(err)
		}
		return h, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(s.opts.RetryLimit)),
		backoff.WithNotify(func(err error, _ time.Duration) {
			events <- event{name: desc.Name, kind: eventRetry, cause: err}
		}))
}

// submitFailure classifies a final submission error against the run's error
// taxonomy.
func (s *Scheduler) submitFailure(ctx context.Context, err error, limit time.Duration) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: wall-clock limit %s exceeded: %v", task.ErrTimeout, limit, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", task.ErrCancelled, err)
	case errors.Is(err, task.ErrSubmission):
		return fmt.Errorf("submission retries exhausted after %d attempts: %w", s.opts.RetryLimit, err)
	default:
		return err
	}
}

// abortCause distinguishes a wall-clock timeout from an operator abort once
// the task context is done.
func (s *Scheduler) abortCause(ctx context.Context, limit time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: wall-clock limit %s exceeded", task.ErrTimeout, limit)
	}
	return fmt.Errorf("%w: aborted while in flight", task.ErrCancelled)
}
