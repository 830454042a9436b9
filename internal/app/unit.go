package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/task"
)

// RunUnit executes a single task body from a serialized invocation. It is
// the re-entry point for batch jobs: the cluster backend enqueues
// `voxpipe unit --invocation FILE` and the compute node lands here with the
// same compiled-in registry the submitting process used.
func (a *App) RunUnit(ctx context.Context, invocationPath string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	data, err := os.ReadFile(invocationPath)
	if err != nil {
		return fmt.Errorf("reading invocation: %w", err)
	}
	var inv task.Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		return fmt.Errorf("decoding invocation %s: %w", invocationPath, err)
	}

	reg, ok := a.units.Unit(inv.Unit)
	if !ok {
		return fmt.Errorf("%w: invocation names unregistered unit %q", task.ErrConfiguration, inv.Unit)
	}

	a.logger.Info("Executing unit.", "task", inv.Task, "unit", inv.Unit)
	if err := reg.Unit.Run(ctx, &inv); err != nil {
		return fmt.Errorf("unit %s: %w", inv.Task, err)
	}
	a.logger.Info("Unit finished.", "task", inv.Task)
	return nil
}
