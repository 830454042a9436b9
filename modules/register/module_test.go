package register

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpipe/voxpipe/internal/task"
)

type fakeRunner struct {
	runs    [][]string
	outputs []string
	outErr  error
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) error {
	f.runs = append(f.runs, append([]string{dir, name}, args...))
	return nil
}

func (f *fakeRunner) Output(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.runs = append(f.runs, append([]string{dir, name}, args...))
	if f.outErr != nil {
		return nil, f.outErr
	}
	if len(f.outputs) == 0 {
		return []byte("0"), nil
	}
	out := f.outputs[0]
	f.outputs = f.outputs[1:]
	return []byte(out), nil
}

func (f *fakeRunner) count(name string) int {
	n := 0
	for _, run := range f.runs {
		if run[1] == name {
			n++
		}
	}
	return n
}

// newFixture stages a reference and one moving volume.
func newFixture(t *testing.T) (string, *task.Invocation) {
	t.Helper()
	workDir := t.TempDir()
	scans := filepath.Join(workDir, "scans")
	require.NoError(t, os.MkdirAll(scans, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scans, "s000.nii.gz"), []byte("reference"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(scans, "s001.nii.gz"), []byte("moving"), 0644))
	return workDir, &task.Invocation{Task: "register.S1", Session: "S1", WorkDir: workDir}
}

func TestRegisterRunConvergesEarly(t *testing.T) {
	workDir, inv := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "mask.nii.gz"), []byte("mask"), 0644))

	// Improvement between the two levels is 0.0001, below the 0.0005 floor,
	// so refinement stops after the second pass.
	runner := &fakeRunner{outputs: []string{"-0.500000", "-0.500100"}}
	unit := &Unit{Runner: runner}

	require.NoError(t, unit.Run(context.Background(), inv))
	assert.Equal(t, 2, runner.count("antsRegistration"))
	assert.Equal(t, 2, runner.count("MeasureImageSimilarity"))

	// The reference frame is passed through unchanged.
	ref, err := os.ReadFile(filepath.Join(workDir, "reg_volumes", "reg_s000.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, "reference", string(ref))

	reference := filepath.Join(workDir, "scans", "s000.nii.gz")
	moving := filepath.Join(workDir, "scans", "s001.nii.gz")
	warped := filepath.Join(workDir, "reg_volumes", "reg_s001.nii.gz")

	first := runner.runs[0]
	assert.Equal(t, "antsRegistration", first[1])
	assert.Contains(t, first, fmt.Sprintf("CC[%s,%s,1,4]", reference, moving))
	assert.Contains(t, first, "--masks")

	// The second pass refines the warped volume, not the original.
	var second []string
	seen := 0
	for _, run := range runner.runs {
		if run[1] == "antsRegistration" {
			seen++
			if seen == 2 {
				second = run
			}
		}
	}
	require.NotNil(t, second)
	assert.Contains(t, second, fmt.Sprintf("CC[%s,%s,1,4]", reference, warped))
}

func TestRegisterRunStopsAtLevelBound(t *testing.T) {
	_, inv := newFixture(t)

	// Every level improves by a full unit, so only the bound stops the loop.
	runner := &fakeRunner{outputs: []string{"-1", "-2", "-3", "-4", "-5"}}
	unit := &Unit{Runner: runner}

	require.NoError(t, unit.Run(context.Background(), inv))
	assert.Equal(t, DefaultLevels, runner.count("antsRegistration"))
}

func TestRegisterRunHonorsLevelParams(t *testing.T) {
	_, inv := newFixture(t)
	inv.Params = map[string]any{"levels": int64(1), "transform": "Rigid"}

	runner := &fakeRunner{outputs: []string{"-1", "-2", "-3"}}
	unit := &Unit{Runner: runner}

	require.NoError(t, unit.Run(context.Background(), inv))
	assert.Equal(t, 1, runner.count("antsRegistration"))
	assert.Contains(t, runner.runs[0], "Rigid[0.1]")
}

func TestRegisterRunSimilarityFailureKeepsAlignment(t *testing.T) {
	_, inv := newFixture(t)

	runner := &fakeRunner{outErr: errors.New("MeasureImageSimilarity: not found")}
	unit := &Unit{Runner: runner}

	require.NoError(t, unit.Run(context.Background(), inv))
	assert.Equal(t, 1, runner.count("antsRegistration"))
}

func TestRegisterRunReferenceOnly(t *testing.T) {
	workDir := t.TempDir()
	scans := filepath.Join(workDir, "scans")
	require.NoError(t, os.MkdirAll(scans, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scans, "s000.nii.gz"), []byte("reference"), 0644))

	runner := &fakeRunner{}
	unit := &Unit{Runner: runner}

	inv := &task.Invocation{Task: "register.S1", Session: "S1", WorkDir: workDir}
	require.NoError(t, unit.Run(context.Background(), inv))
	assert.Zero(t, runner.count("antsRegistration"))
	assert.FileExists(t, filepath.Join(workDir, "reg_volumes", "reg_s000.nii.gz"))
}

func TestRegisterRunRequiresStagedVolumes(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "scans"), 0755))
	unit := &Unit{Runner: &fakeRunner{}}

	err := unit.Run(context.Background(), &task.Invocation{Task: "register.S1", Session: "S1", WorkDir: workDir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no staged volumes")
}
