package resume

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTarget(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		ok, err := File{Path: filepath.Join(dir, "missing.nii.gz")}.Exists()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty file does not count", func(t *testing.T) {
		path := filepath.Join(dir, "empty.nii.gz")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		ok, err := File{Path: path}.Exists()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non-empty file counts", func(t *testing.T) {
		path := filepath.Join(dir, "mask.nii.gz")
		require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
		ok, err := File{Path: path}.Exists()
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestDirTarget(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing directory", func(t *testing.T) {
		ok, err := Dir{Path: filepath.Join(dir, "missing")}.Exists()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty directory does not count", func(t *testing.T) {
		path := filepath.Join(dir, "scans")
		require.NoError(t, os.Mkdir(path, 0755))
		ok, err := Dir{Path: path}.Exists()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("populated directory counts", func(t *testing.T) {
		path := filepath.Join(dir, "reg_volumes")
		require.NoError(t, os.Mkdir(path, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(path, "volume001.nii.gz"), []byte("data"), 0644))
		ok, err := Dir{Path: path}.Exists()
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestTrackerShouldSkip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	existing := filepath.Join(dir, "out.nii.gz")
	require.NoError(t, os.WriteFile(existing, []byte("data"), 0644))
	targets := []Target{File{Path: existing}}

	t.Run("skips when outputs exist and overwrite is off", func(t *testing.T) {
		skip, err := NewTracker(true).ShouldSkip(ctx, "model.S1", targets, false)
		require.NoError(t, err)
		assert.True(t, skip)
	})

	t.Run("overwrite forces execution on the same state", func(t *testing.T) {
		skip, err := NewTracker(true).ShouldSkip(ctx, "model.S1", targets, true)
		require.NoError(t, err)
		assert.False(t, skip)
	})

	t.Run("missing output forces execution", func(t *testing.T) {
		missing := []Target{File{Path: existing}, File{Path: filepath.Join(dir, "nope.nii.gz")}}
		skip, err := NewTracker(true).ShouldSkip(ctx, "model.S1", missing, false)
		require.NoError(t, err)
		assert.False(t, skip)
	})

	t.Run("no declared outputs never skips", func(t *testing.T) {
		skip, err := NewTracker(true).ShouldSkip(ctx, "model.S1", nil, false)
		require.NoError(t, err)
		assert.False(t, skip)
	})

	t.Run("disabled tracker never skips", func(t *testing.T) {
		skip, err := NewTracker(false).ShouldSkip(ctx, "model.S1", targets, false)
		require.NoError(t, err)
		assert.False(t, skip)
	})
}
