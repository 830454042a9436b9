// Package backend abstracts where a task executes: in-process on the calling
// worker, or asynchronously on the shared batch cluster.
package backend

import (
	"context"

	"github.com/voxpipe/voxpipe/internal/policy"
	"github.com/voxpipe/voxpipe/internal/task"
)

// Status is one observation of a submitted task. State is Submitted while
// the work waits for an execution slot, Running once it executes, and
// finally Succeeded or Failed with Cause set.
type Status struct {
	State task.State
	Cause error
}

// Handle identifies one submission for later polling or cancellation.
type Handle interface {
	Task() task.Name
	// ID is the backend-specific submission identifier, for logs.
	ID() string
}

// Backend accepts a task invocation with its resolved policy and executes it.
type Backend interface {
	Name() string
	// Submit hands the invocation over. A transient scheduler-communication
	// failure wraps task.ErrSubmission so the caller can retry it; any other
	// error is permanent.
	Submit(ctx context.Context, inv *task.Invocation, pol policy.Resource) (Handle, error)
	// Poll reports the current status of a submission. Implementations
	// tolerate transient communication failures by reporting a non-terminal
	// state rather than failing the task.
	Poll(ctx context.Context, h Handle) (Status, error)
	// Cancel makes a best effort to stop a submission.
	Cancel(ctx context.Context, h Handle) error
}
