package sge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/voxpipe/voxpipe/internal/command"
)

// ExecClient drives the Grid Engine command-line tools through a
// command.Runner. The runner is injectable so tests can script the queue.
type ExecClient struct {
	run command.Runner
}

// NewExecClient returns a Client backed by qsub/qstat/qdel/qacct. A nil
// runner falls back to the real exec runner.
func NewExecClient(run command.Runner) *ExecClient {
	if run == nil {
		run = command.NewExec()
	}
	return &ExecClient{run: run}
}

// Submit implements Client. It submits with -terse so stdout is just the job
// id.
func (c *ExecClient) Submit(ctx context.Context, spec JobSpec) (JobID, error) {
	args := append([]string{"-terse"}, spec.Args()...)
	out, err := c.run.Output(ctx, "", "qsub", args...)
	if err != nil {
		return "", fmt.Errorf("qsub: %w", err)
	}

	id := strings.TrimSpace(string(out))
	// Array submissions report "id.first-last:step"; keep the bare id.
	if i := strings.IndexByte(id, '.'); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return "", fmt.Errorf("qsub returned no job id")
	}
	return JobID(id), nil
}

// Status implements Client by scanning the qstat listing. A job absent from
// the listing has left the queue and reports StateDone.
func (c *ExecClient) Status(ctx context.Context, id JobID) (JobStatus, error) {
	out, err := c.run.Output(ctx, "", "qstat")
	if err != nil {
		return JobStatus{}, fmt.Errorf("qstat: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || fields[0] != string(id) {
			continue
		}
		code := fields[4]
		return JobStatus{State: parseState(code), Raw: code}, nil
	}
	return JobStatus{State: StateDone}, nil
}

// Cancel implements Client.
func (c *ExecClient) Cancel(ctx context.Context, id JobID) error {
	if err := c.run.Run(ctx, "", "qdel", string(id)); err != nil {
		return fmt.Errorf("qdel %s: %w", id, err)
	}
	return nil
}

// ExitStatus implements Client by reading the job's accounting record.
func (c *ExecClient) ExitStatus(ctx context.Context, id JobID) (int, error) {
	out, err := c.run.Output(ctx, "", "qacct", "-j", string(id))
	if err != nil {
		return 0, fmt.Errorf("qacct %s: %w", id, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "exit_status" {
			code, err := strconv.Atoi(fields[1])
			if err != nil {
				return 0, fmt.Errorf("qacct %s: unparseable exit_status %q", id, fields[1])
			}
			return code, nil
		}
	}
	return 0, fmt.Errorf("qacct %s: no exit_status in accounting record", id)
}

// parseState maps Grid Engine state codes onto the coarse JobState set.
// Suspended jobs count as running; they are still alive.
func parseState(code string) JobState {
	switch {
	case strings.HasPrefix(code, "E"):
		return StateError
	case strings.ContainsAny(code, "rtsST"):
		return StateRunning
	case strings.ContainsAny(code, "qwh"):
		return StateQueued
	default:
		return StateUnknown
	}
}
