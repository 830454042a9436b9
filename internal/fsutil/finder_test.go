package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	tmpDir := t.TempDir()
	for _, rel := range []string{"b.hcl", "a.hcl", "sub/c.hcl", "sub/skip.txt"} {
		path := filepath.Join(tmpDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	files, err := FindFilesByExtension(tmpDir, ".hcl")
	require.NoError(t, err)

	want := []string{
		filepath.Join(tmpDir, "a.hcl"),
		filepath.Join(tmpDir, "b.hcl"),
		filepath.Join(tmpDir, "sub", "c.hcl"),
	}
	assert.Equal(t, want, files)
}

func TestFindFilesByExtensionPanicsOnEmptyExtension(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = FindFilesByExtension(".", "")
	})
}

func TestCopyFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src.bqf")
	dst := filepath.Join(tmpDir, "dst.bqf")
	require.NoError(t, os.WriteFile(src, []byte("roi payload"), 0644))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "roi payload", string(data))
}

func TestCopyFileMissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	err := CopyFile(filepath.Join(tmpDir, "absent"), filepath.Join(tmpDir, "dst"))
	assert.Error(t, err)
}
