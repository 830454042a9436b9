// Package register aligns a session's staged volumes to a common reference
// frame with ANTs, refining each alignment until it stops improving.
package register

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/voxpipe/voxpipe/internal/command"
	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/fsutil"
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
)

// Refinement bounds. A level is one full registration pass over a volume;
// refinement of that volume stops early once the similarity metric improves
// by less than the minimum delta.
const (
	DefaultLevels    = 3
	DefaultMinDelta  = 0.0005
	DefaultTransform = "SyN"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Unit registers every staged volume of a session against the first one and
// writes the warped volumes to <work>/reg_volumes with a reg_ prefix.
type Unit struct {
	// Runner executes the registration tools; nil uses the real executables.
	Runner command.Runner
}

func (u *Unit) runner() command.Runner {
	if u.Runner != nil {
		return u.Runner
	}
	return command.NewExec()
}

// Run aligns the session series. The refinement loop is tunable per policy
// through the "levels", "min_delta" and "transform" parameters.
func (u *Unit) Run(ctx context.Context, inv *task.Invocation) error {
	logger := ctxlog.FromContext(ctx).With("unit", "register", "session", inv.Session)

	scans := filepath.Join(inv.WorkDir, "scans")
	vols, err := fsutil.FindFilesByExtension(scans, ".nii.gz")
	if err != nil {
		return fmt.Errorf("scanning staged volumes: %w", err)
	}
	if len(vols) == 0 {
		return fmt.Errorf("session %s has no staged volumes in %s", inv.Session, scans)
	}

	dest := filepath.Join(inv.WorkDir, "reg_volumes")
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("creating registration directory: %w", err)
	}

	reference := vols[0]
	maskFile := filepath.Join(inv.WorkDir, "mask.nii.gz")
	levels := inv.IntParam("levels", DefaultLevels)
	minDelta := inv.FloatParam("min_delta", DefaultMinDelta)
	transform := inv.StringParam("transform", DefaultTransform)

	logger.Info("Registering session series.",
		"reference", filepath.Base(reference), "volumes", len(vols)-1,
		"transform", transform, "levels", levels)

	// The reference frame passes through unchanged.
	if err := fsutil.CopyFile(reference, filepath.Join(dest, "reg_"+filepath.Base(reference))); err != nil {
		return fmt.Errorf("copying reference volume: %w", err)
	}

	for _, moving := range vols[1:] {
		out := filepath.Join(dest, "reg_"+filepath.Base(moving))
		if err := u.alignVolume(ctx, logger, inv.WorkDir, reference, moving, maskFile, out, transform, levels, minDelta); err != nil {
			return fmt.Errorf("registering %s: %w", filepath.Base(moving), err)
		}
	}
	return nil
}

// alignVolume runs up to levels registration passes, feeding each warped
// result back in as the moving image. Termination is guaranteed by the level
// bound; convergence usually stops it earlier.
func (u *Unit) alignVolume(ctx context.Context, logger *slog.Logger, workDir, reference, moving, mask, out, transform string, levels int, minDelta float64) error {
	prev := math.Inf(1)
	for level := 1; level <= levels; level++ {
		prefix := strings.TrimSuffix(out, ".nii.gz") + "_"
		args := []string{
			"--dimensionality", "3",
			"--output", fmt.Sprintf("[%s,%s]", prefix, out),
			"--transform", fmt.Sprintf("%s[0.1]", transform),
			"--metric", fmt.Sprintf("CC[%s,%s,1,4]", reference, moving),
			"--convergence", "[40x20x10,1e-6,10]",
			"--shrink-factors", "4x2x1",
			"--smoothing-sigmas", "2x1x0vox",
		}
		if _, err := os.Stat(mask); err == nil {
			args = append(args, "--masks", mask)
		}
		if err := u.runner().Run(ctx, workDir, "antsRegistration", args...); err != nil {
			return err
		}

		metric, err := u.similarity(ctx, workDir, reference, out)
		if err != nil {
			logger.Warn("Similarity probe failed, keeping current alignment.",
				"volume", filepath.Base(moving), "level", level, "error", err)
			return nil
		}
		improvement := prev - metric
		logger.Info("Registration level finished.",
			"volume", filepath.Base(moving), "level", level,
			"metric", metric, "improvement", improvement)
		if improvement < minDelta {
			logger.Info("Refinement converged.", "volume", filepath.Base(moving), "levels", level)
			return nil
		}
		prev = metric
		moving = out
	}
	return nil
}

// similarity probes alignment quality. MeasureImageSimilarity prints the
// metric value as the last field of its output; lower is better.
func (u *Unit) similarity(ctx context.Context, workDir, fixed, moving string) (float64, error) {
	out, err := u.runner().Output(ctx, workDir, "MeasureImageSimilarity",
		"--dimensionality", "3",
		"--metric", fmt.Sprintf("MI[%s,%s,1,32]", fixed, moving))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty similarity output")
	}
	v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing similarity output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return v, nil
}

// Register registers the registration unit with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit("register", &registry.Registration{
		Unit:    &Unit{},
		ToolKey: "ants.registration",
		Outputs: func(workRoot, session string) []resume.Target {
			return []resume.Target{resume.Dir{Path: filepath.Join(workRoot, session, "reg_volumes")}}
		},
	})
}
