// Package stage converts a session's raw DICOM series into compressed NIfTI
// volumes laid out for the downstream pipeline stages.
package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxpipe/voxpipe/internal/command"
	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Unit stages one session: it runs dcm2niix over the session's DICOM tree
// and collects the converted volumes under <work>/scans.
type Unit struct {
	// Runner executes the conversion tool; nil uses the real executable.
	Runner command.Runner
}

func (u *Unit) runner() command.Runner {
	if u.Runner != nil {
		return u.Runner
	}
	return command.NewExec()
}

// Run converts the DICOM series found under the session's input directory.
func (u *Unit) Run(ctx context.Context, inv *task.Invocation) error {
	logger := ctxlog.FromContext(ctx).With("unit", "stage", "session", inv.Session)

	source := inv.Inputs["dicom"]
	if source == "" {
		return fmt.Errorf("session %s has no dicom input", inv.Session)
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("dicom source: %w", err)
	}

	dest := filepath.Join(inv.WorkDir, "scans")
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("creating scan directory: %w", err)
	}

	logger.Info("Converting DICOM series.", "source", source, "dest", dest)
	args := []string{"-z", "y", "-b", "n", "-f", "%p_s%3s", "-o", dest, source}
	if err := u.runner().Run(ctx, inv.WorkDir, "dcm2niix", args...); err != nil {
		return fmt.Errorf("staging session %s: %w", inv.Session, err)
	}
	return nil
}

// Register registers the staging unit with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit("stage", &registry.Registration{
		Unit:    &Unit{},
		ToolKey: "dcm2niix",
		Outputs: func(workRoot, session string) []resume.Target {
			return []resume.Target{resume.Dir{Path: filepath.Join(workRoot, session, "scans")}}
		},
		Inputs: func(inputRoot, session string) map[string]string {
			return map[string]string{"dicom": filepath.Join(inputRoot, session)}
		},
	})
}
