package task

import "errors"

// Classification sentinels for everything that can go wrong during a run.
// Call sites wrap them with fmt.Errorf("...: %w", Err...) and decision points
// branch with errors.Is.
var (
	// ErrConfiguration means policy resolution or run setup failed. Fatal;
	// the run aborts before any submission.
	ErrConfiguration = errors.New("configuration error")

	// ErrCycle means the workflow graph invariant was violated. The fixed
	// precedence table is acyclic by construction, so this indicates a
	// construction defect rather than user error.
	ErrCycle = errors.New("workflow graph cycle")

	// ErrSubmission is a transient scheduler-communication failure. It is
	// the only kind retried automatically, with bounded backoff.
	ErrSubmission = errors.New("submission failed")

	// ErrExecution means the task body ran and reported failure. Never
	// retried; propagates failure to all dependents.
	ErrExecution = errors.New("task execution failed")

	// ErrTimeout means the task exceeded its wall-clock limit. The handle
	// is cancelled first, then the failure is recorded.
	ErrTimeout = errors.New("wall-clock limit exceeded")

	// ErrCancelled means the run was aborted by the operator.
	ErrCancelled = errors.New("run cancelled")
)
