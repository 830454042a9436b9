// Package sge is the batch-queue client: job specs, queue states, and a
// Client implementation that shells out to the Grid Engine command-line
// tools (qsub, qstat, qdel, qacct).
package sge

import (
	"context"
	"sort"
	"strings"
)

// JobID identifies a job in the external batch queue.
type JobID string

// JobState is the coarse queue-side lifecycle of a job.
type JobState int

const (
	// StateUnknown means the state code could not be interpreted.
	StateUnknown JobState = iota
	// StateQueued means the job is waiting for a slot.
	StateQueued
	// StateRunning means the job is executing (or suspended but alive).
	StateRunning
	// StateDone means the job has left the queue; the accounting record
	// holds its exit status.
	StateDone
	// StateError means the queue put the job into an error state before it
	// ever ran.
	StateError
)

// JobStatus is one observation of a job's queue state.
type JobStatus struct {
	State JobState
	// Raw is the scheduler's own state code, kept for logs.
	Raw string
}

// JobSpec describes one batch submission.
type JobSpec struct {
	// Name is the queue-visible job name.
	Name string
	// Command is the argv executed on the compute node.
	Command []string
	// Resources are hard resource directives (h_rt, mf, h_vmem, ...).
	Resources map[string]string
	// ParallelEnv is a parallel environment request, e.g. "mpi 48-120".
	ParallelEnv string
	// Queue optionally pins a queue.
	Queue string
	// Binary marks Command as a binary rather than a shell script.
	Binary bool
	// WorkDir is the working directory on the compute node.
	WorkDir string
	// OutputPath joins stdout and stderr into one log file.
	OutputPath string
}

// Args renders the qsub argument list for this spec. Resource keys are sorted
// so the same spec always renders the same argv.
func (s JobSpec) Args() []string {
	var args []string
	if s.Name != "" {
		args = append(args, "-N", sanitizeJobName(s.Name))
	}
	if s.WorkDir != "" {
		args = append(args, "-wd", s.WorkDir)
	}
	if s.OutputPath != "" {
		args = append(args, "-o", s.OutputPath, "-j", "y")
	}
	if s.Binary {
		args = append(args, "-b", "y")
	} else {
		args = append(args, "-b", "n")
	}
	if s.Queue != "" {
		args = append(args, "-q", s.Queue)
	}
	if s.ParallelEnv != "" {
		args = append(args, "-pe")
		args = append(args, strings.Fields(s.ParallelEnv)...)
	}
	if len(s.Resources) > 0 {
		keys := make([]string, 0, len(s.Resources))
		for k := range s.Resources {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+s.Resources[k])
		}
		args = append(args, "-l", strings.Join(pairs, ","))
	}
	args = append(args, s.Command...)
	return args
}

// sanitizeJobName maps a task name onto the restricted character set queue
// job names allow, with a letter prefix.
func sanitizeJobName(name string) string {
	var b strings.Builder
	b.WriteString("vp_")
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Client is the submit/poll/cancel surface of the external batch queue.
type Client interface {
	Submit(ctx context.Context, spec JobSpec) (JobID, error)
	Status(ctx context.Context, id JobID) (JobStatus, error)
	Cancel(ctx context.Context, id JobID) error
	// ExitStatus reads the accounting record of a job that has left the
	// queue. It may lag briefly behind the job's disappearance.
	ExitStatus(ctx context.Context, id JobID) (int, error)
}
