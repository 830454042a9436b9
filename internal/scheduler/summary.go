package scheduler

import (
	"time"

	"github.com/voxpipe/voxpipe/internal/task"
)

// TaskResult is the terminal record of one task in a finished run.
type TaskResult struct {
	Name    task.Name
	State   task.State
	Cause   string
	Backend string
	// Retries counts submission attempts beyond the first.
	Retries  int
	Duration time.Duration
}

// RunSummary is the immutable outcome of one run. Tasks appear in the plan's
// topological order regardless of completion order.
type RunSummary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Tasks    []TaskResult
}

// Counts tallies tasks per terminal state.
func (s *RunSummary) Counts() map[task.State]int {
	counts := make(map[task.State]int)
	for _, t := range s.Tasks {
		counts[t.State]++
	}
	return counts
}

// Failed reports whether any task ended in the failed state.
func (s *RunSummary) Failed() bool {
	for _, t := range s.Tasks {
		if t.State == task.Failed {
			return true
		}
	}
	return false
}

// Elapsed returns the wall time the run took.
func (s *RunSummary) Elapsed() time.Duration {
	return s.Finished.Sub(s.Started)
}
