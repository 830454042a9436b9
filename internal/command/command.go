// Package command wraps external tool invocation behind a small interface so
// execution units and the batch client can be tested without the real
// binaries installed.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
)

// Runner executes external commands. dir may be empty to inherit the process
// working directory.
type Runner interface {
	// Run executes the command, capturing combined output for error context.
	Run(ctx context.Context, dir string, name string, args ...string) error
	// Output executes the command and returns its standard output.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// Exec is the Runner used outside of tests. It shells out via os/exec and
// honors context cancellation by killing the process.
type Exec struct{}

// NewExec returns an exec-backed Runner.
func NewExec() *Exec {
	return &Exec{}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, dir, name string, args ...string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running external command.", "command", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %v: %s", name, err, tail(combined.Bytes()))
	}
	return nil
}

// Output implements Runner.
func (e *Exec) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running external command.", "command", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %v: %s", name, err, tail(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// tail trims command output to the last few hundred bytes so failures stay
// readable in logs and error chains.
func tail(b []byte) string {
	const max = 400
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}
