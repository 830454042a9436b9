package resume

import (
	"context"
	"fmt"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
)

// Tracker evaluates the skip predicate for a task immediately before it would
// be submitted. It is a pure predicate with no side effects.
type Tracker struct {
	enabled bool
}

// NewTracker returns a tracker. A disabled tracker never skips, which is how
// a run with resume turned off forces every task to execute.
func NewTracker(enabled bool) *Tracker {
	return &Tracker{enabled: enabled}
}

// Enabled reports whether resume checks are active for this run.
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// ShouldSkip reports whether the named task's work is already done: the
// overwrite flag is unset and every declared target exists and is non-empty.
// Tasks with no declared outputs are never skipped because there is nothing
// to prove their work happened.
func (t *Tracker) ShouldSkip(ctx context.Context, name string, targets []Target, overwrite bool) (bool, error) {
	if !t.enabled || overwrite || len(targets) == 0 {
		return false, nil
	}

	logger := ctxlog.FromContext(ctx)
	for _, target := range targets {
		ok, err := target.Exists()
		if err != nil {
			return false, fmt.Errorf("checking output %s: %w", target.Ref(), err)
		}
		if !ok {
			logger.Debug("Output missing, task will run.", "task", name, "output", target.Ref())
			return false, nil
		}
	}

	logger.Debug("All declared outputs present, task is skippable.", "task", name)
	return true, nil
}
