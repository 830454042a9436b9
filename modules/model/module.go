// Package model fits a pharmacokinetic model to the registered series and
// emits voxel-wise parameter maps.
package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxpipe/voxpipe/internal/command"
	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/fsutil"
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
)

// DefaultModel is the pharmacokinetic model fitted when policy does not pick
// another one.
const DefaultModel = "ext_tofts"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Unit runs the fastfit solver over a session's registered volumes and
// collects the parameter maps under <work>/pk_maps.
type Unit struct {
	// Runner executes the solver; nil uses the real executable.
	Runner command.Runner
}

func (u *Unit) runner() command.Runner {
	if u.Runner != nil {
		return u.Runner
	}
	return command.NewExec()
}

// Run fits the model. The model name is tunable per policy through the
// "model" parameter.
func (u *Unit) Run(ctx context.Context, inv *task.Invocation) error {
	logger := ctxlog.FromContext(ctx).With("unit", "model", "session", inv.Session)

	regDir := filepath.Join(inv.WorkDir, "reg_volumes")
	vols, err := fsutil.FindFilesByExtension(regDir, ".nii.gz")
	if err != nil {
		return fmt.Errorf("scanning registered volumes: %w", err)
	}
	if len(vols) == 0 {
		return fmt.Errorf("session %s has no registered volumes in %s", inv.Session, regDir)
	}

	dest := filepath.Join(inv.WorkDir, "pk_maps")
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("creating modeling directory: %w", err)
	}

	name := inv.StringParam("model", DefaultModel)
	args := []string{"--model", name, "--output", dest}
	maskFile := filepath.Join(inv.WorkDir, "mask.nii.gz")
	if _, err := os.Stat(maskFile); err == nil {
		args = append(args, "--mask", maskFile)
	}
	args = append(args, vols...)

	logger.Info("Fitting pharmacokinetic model.", "model", name, "volumes", len(vols))
	if err := u.runner().Run(ctx, inv.WorkDir, "fastfit", args...); err != nil {
		return fmt.Errorf("modeling session %s: %w", inv.Session, err)
	}
	return nil
}

// Register registers the modeling unit with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit("model", &registry.Registration{
		Unit:    &Unit{},
		ToolKey: "fastfit",
		Outputs: func(workRoot, session string) []resume.Target {
			return []resume.Target{resume.Dir{Path: filepath.Join(workRoot, session, "pk_maps")}}
		},
	})
}
