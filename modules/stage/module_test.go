package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpipe/voxpipe/internal/task"
)

type fakeRunner struct {
	runs [][]string
	err  error
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) error {
	f.runs = append(f.runs, append([]string{dir, name}, args...))
	return f.err
}

func (f *fakeRunner) Output(context.Context, string, string, ...string) ([]byte, error) {
	return nil, nil
}

func TestStageRunConvertsSeries(t *testing.T) {
	workDir := t.TempDir()
	input := t.TempDir()
	runner := &fakeRunner{}
	unit := &Unit{Runner: runner}

	inv := &task.Invocation{
		Task:    "stage.S1",
		Unit:    "stage",
		Session: "S1",
		WorkDir: workDir,
		Inputs:  map[string]string{"dicom": input},
	}
	require.NoError(t, unit.Run(context.Background(), inv))

	scans := filepath.Join(workDir, "scans")
	info, err := os.Stat(scans)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.Len(t, runner.runs, 1)
	want := []string{workDir, "dcm2niix", "-z", "y", "-b", "n", "-f", "%p_s%3s", "-o", scans, input}
	assert.Equal(t, want, runner.runs[0])
}

func TestStageRunRequiresDicomInput(t *testing.T) {
	unit := &Unit{Runner: &fakeRunner{}}

	err := unit.Run(context.Background(), &task.Invocation{
		Task:    "stage.S1",
		Session: "S1",
		WorkDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dicom input")

	err = unit.Run(context.Background(), &task.Invocation{
		Task:    "stage.S1",
		Session: "S1",
		WorkDir: t.TempDir(),
		Inputs:  map[string]string{"dicom": filepath.Join(t.TempDir(), "absent")},
	})
	require.Error(t, err)
}

func TestStageRunWrapsToolFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("dcm2niix: no DICOM files found")}
	unit := &Unit{Runner: runner}

	err := unit.Run(context.Background(), &task.Invocation{
		Task:    "stage.S1",
		Session: "S1",
		WorkDir: t.TempDir(),
		Inputs:  map[string]string{"dicom": t.TempDir()},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging session S1")
}
