// Package mask builds the anatomy mask that confines registration and
// modeling to tissue voxels.
package mask

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/voxpipe/voxpipe/internal/command"
	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/fsutil"
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Unit runs FSL bet over the first staged volume and leaves the binary mask
// at <work>/mask.nii.gz.
type Unit struct {
	// Runner executes the masking tool; nil uses the real executable.
	Runner command.Runner
}

func (u *Unit) runner() command.Runner {
	if u.Runner != nil {
		return u.Runner
	}
	return command.NewExec()
}

// Run computes the mask. The fractional intensity threshold is tunable per
// policy through the "fractional_intensity" parameter.
func (u *Unit) Run(ctx context.Context, inv *task.Invocation) error {
	logger := ctxlog.FromContext(ctx).With("unit", "mask", "session", inv.Session)

	scans := filepath.Join(inv.WorkDir, "scans")
	vols, err := fsutil.FindFilesByExtension(scans, ".nii.gz")
	if err != nil {
		return fmt.Errorf("scanning staged volumes: %w", err)
	}
	if len(vols) == 0 {
		return fmt.Errorf("session %s has no staged volumes in %s", inv.Session, scans)
	}

	frac := inv.FloatParam("fractional_intensity", 0.5)
	base := filepath.Join(inv.WorkDir, "mask")

	logger.Info("Computing anatomy mask.", "reference", vols[0], "fractionalIntensity", frac)
	args := []string{vols[0], base, "-n", "-m", "-f", strconv.FormatFloat(frac, 'f', -1, 64)}
	if err := u.runner().Run(ctx, inv.WorkDir, "bet", args...); err != nil {
		return fmt.Errorf("masking session %s: %w", inv.Session, err)
	}

	// bet names the binary mask <base>_mask.nii.gz.
	if err := os.Rename(base+"_mask.nii.gz", base+".nii.gz"); err != nil {
		return fmt.Errorf("collecting mask output: %w", err)
	}
	return nil
}

// Register registers the mask unit with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit("mask", &registry.Registration{
		Unit:    &Unit{},
		ToolKey: "fsl.bet",
		Outputs: func(workRoot, session string) []resume.Target {
			return []resume.Target{resume.File{Path: filepath.Join(workRoot, session, "mask.nii.gz")}}
		},
	})
}
