// Package roi collects radiologist-drawn region-of-interest files for a
// session and canonicalizes their names into the working tree.
package roi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/fsutil"
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
)

// filePattern extracts the lesion and slice indices from an ROI file name,
// e.g. "lesion1_slice12.bqf".
var filePattern = regexp.MustCompile(`lesion(\d+)_slice(\d+)\.bqf$`)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Unit discovers .bqf ROI files in the session input tree. The work is pure
// file shuffling, so it always runs in-process.
type Unit struct{}

// Run copies every recognized ROI file into <work>/rois. A session without
// ROI data is normal and succeeds without output.
func (u *Unit) Run(ctx context.Context, inv *task.Invocation) error {
	logger := ctxlog.FromContext(ctx).With("unit", "roi", "session", inv.Session)

	source := inv.Inputs["rois"]
	if source == "" {
		return fmt.Errorf("session %s has no roi input", inv.Session)
	}
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			logger.Info("Session has no ROI directory.", "source", source)
			return nil
		}
		return fmt.Errorf("roi source: %w", err)
	}

	files, err := fsutil.FindFilesByExtension(source, ".bqf")
	if err != nil {
		return fmt.Errorf("scanning %s: %w", source, err)
	}
	if len(files) == 0 {
		logger.Info("Session has no ROI files.", "source", source)
		return nil
	}

	dest := filepath.Join(inv.WorkDir, "rois")
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("creating roi directory: %w", err)
	}

	copied := 0
	for _, file := range files {
		m := filePattern.FindStringSubmatch(filepath.Base(file))
		if m == nil {
			logger.Warn("Ignoring ROI file with unrecognized name.", "file", file)
			continue
		}
		lesion, _ := strconv.Atoi(m[1])
		slice, _ := strconv.Atoi(m[2])
		name := fmt.Sprintf("lesion%02d_slice%03d.bqf", lesion, slice)
		if err := fsutil.CopyFile(file, filepath.Join(dest, name)); err != nil {
			return fmt.Errorf("copying %s: %w", file, err)
		}
		copied++
	}

	logger.Info("Collected ROI files.", "found", len(files), "copied", copied)
	return nil
}

// Register registers the roi unit with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit("roi", &registry.Registration{
		Unit:      &Unit{},
		ToolKey:   "bqf",
		LocalOnly: true,
		Outputs: func(workRoot, session string) []resume.Target {
			return []resume.Target{resume.Dir{Path: filepath.Join(workRoot, session, "rois")}}
		},
		Inputs: func(inputRoot, session string) map[string]string {
			return map[string]string{"rois": filepath.Join(inputRoot, session, "rois")}
		},
	})
}
