package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/policy"
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/task"
)

// Local executes units synchronously on the calling worker. A local task is
// counted against the concurrency ceiling like any other; it is meant for
// short, low-resource work not worth queueing overhead.
type Local struct {
	units *registry.Registry
}

// NewLocal returns the in-process backend over the given unit registry.
func NewLocal(units *registry.Registry) *Local {
	return &Local{units: units}
}

// Name implements Backend.
func (l *Local) Name() string { return "local" }

type localHandle struct {
	name   task.Name
	status Status
}

func (h *localHandle) Task() task.Name { return h.name }
func (h *localHandle) ID() string      { return "local:" + string(h.name) }

// Submit runs the unit to completion before returning; the terminal result is
// stored on the handle for Poll. Cancellation and deadlines arrive through
// ctx and are classified into the error taxonomy here.
func (l *Local) Submit(ctx context.Context, inv *task.Invocation, _ policy.Resource) (Handle, error) {
	reg, ok := l.units.Unit(inv.Unit)
	if !ok {
		return nil, fmt.Errorf("%w: unit %q is not registered", task.ErrConfiguration, inv.Unit)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Executing unit in-process.", "task", inv.Task, "unit", inv.Unit)

	h := &localHandle{name: inv.Task}
	err := reg.Unit.Run(ctx, inv)
	switch {
	case err == nil:
		h.status = Status{State: task.Succeeded}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		h.status = Status{State: task.Failed, Cause: fmt.Errorf("%w: %v", task.ErrTimeout, err)}
	case ctx.Err() != nil:
		h.status = Status{State: task.Failed, Cause: fmt.Errorf("%w: %v", task.ErrCancelled, err)}
	default:
		h.status = Status{State: task.Failed, Cause: fmt.Errorf("%w: %v", task.ErrExecution, err)}
	}
	return h, nil
}

// Poll implements Backend by returning the stored terminal result.
func (l *Local) Poll(_ context.Context, h Handle) (Status, error) {
	lh, ok := h.(*localHandle)
	if !ok {
		return Status{}, fmt.Errorf("foreign handle %T", h)
	}
	return lh.status, nil
}

// Cancel implements Backend. Local units stop through context cancellation,
// so there is nothing to do here.
func (l *Local) Cancel(context.Context, Handle) error { return nil }
