// Package resume decides whether a task's declared outputs already exist on
// disk so a restarted run can skip work instead of recomputing it.
package resume

import (
	"errors"
	"io/fs"
	"os"
)

// Target is one declared output location with a cheap existence check. The
// check proves presence, not content validity.
type Target interface {
	// Ref is the stable path or identifier of the output.
	Ref() string
	// Exists reports whether the output is present and non-empty.
	Exists() (bool, error)
}

// File is a Target backed by a regular file. Empty files do not count as
// produced output.
type File struct {
	Path string
}

// Ref implements Target.
func (f File) Ref() string { return f.Path }

// Exists implements Target.
func (f File) Exists() (bool, error) {
	info, err := os.Stat(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

// Dir is a Target backed by a directory. It counts as produced output once it
// holds at least one entry.
type Dir struct {
	Path string
}

// Ref implements Target.
func (d Dir) Ref() string { return d.Path }

// Exists implements Target.
func (d Dir) Exists() (bool, error) {
	entries, err := os.ReadDir(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}
