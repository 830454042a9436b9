package task

// State is the lifecycle position of a task within a single run. Only the
// scheduler's control loop moves a task between states; backends report
// transitions but never write them.
type State int

const (
	// Pending means the task has not been dispatched yet.
	Pending State = iota
	// Skipped means the resume check found all declared outputs in place.
	Skipped
	// Submitted means the task was handed to a backend.
	Submitted
	// Running means the backend reported the task as executing.
	Running
	// Succeeded means the task finished and reported success.
	Succeeded
	// Failed means the task failed, timed out, was cancelled, or was
	// abandoned because an upstream dependency failed.
	Failed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Skipped:
		return "skipped"
	case Submitted:
		return "submitted"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can occur from s.
func (s State) Terminal() bool {
	return s == Skipped || s == Succeeded || s == Failed
}

// Satisfied reports whether a dependency in this state unblocks its
// dependents. Skipped counts because its outputs already exist.
func (s State) Satisfied() bool {
	return s == Succeeded || s == Skipped
}
