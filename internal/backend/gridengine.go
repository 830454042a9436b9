package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/policy"
	"github.com/voxpipe/voxpipe/internal/sge"
	"github.com/voxpipe/voxpipe/internal/task"
)

// GridEngine submits units to the batch cluster as self-contained jobs. Each
// submission serializes the invocation to JSON under the run's work directory
// and enqueues `voxpipe unit --invocation FILE`, so the compute node
// re-enters this binary with the same registry.
type GridEngine struct {
	client  sge.Client
	workDir string
	// executable is the binary path submitted to the queue. Resolved from
	// the running process; overridable in tests.
	executable string
}

// NewGridEngine returns the batch cluster backend writing job material under
// workDir.
func NewGridEngine(client sge.Client, workDir string) (*GridEngine, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving executable for job submission: %w", err)
	}
	return &GridEngine{client: client, workDir: workDir, executable: exe}, nil
}

// Name implements Backend.
func (g *GridEngine) Name() string { return "gridengine" }

type gridHandle struct {
	name task.Name
	job  sge.JobID
}

func (h *gridHandle) Task() task.Name { return h.name }
func (h *gridHandle) ID() string      { return "sge:" + string(h.job) }

// Submit implements Backend. Communication failures with the queue wrap
// task.ErrSubmission and are retryable.
func (g *GridEngine) Submit(ctx context.Context, inv *task.Invocation, pol policy.Resource) (Handle, error) {
	jobDir := filepath.Join(g.workDir, "jobs", string(inv.Task))
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, fmt.Errorf("creating job directory: %w", err)
	}

	invPath := filepath.Join(jobDir, "invocation.json")
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding invocation for %s: %w", inv.Task, err)
	}
	if err := os.WriteFile(invPath, data, 0644); err != nil {
		return nil, fmt.Errorf("writing invocation for %s: %w", inv.Task, err)
	}

	spec := sge.JobSpec{
		Name:        string(inv.Task),
		Command:     []string{g.executable, "unit", "--invocation", invPath},
		Resources:   resourceArgs(pol.QueueArgs),
		ParallelEnv: pol.QueueArgs["pe"],
		Queue:       pol.QueueArgs["queue"],
		Binary:      true,
		WorkDir:     jobDir,
		OutputPath:  filepath.Join(jobDir, "unit.log"),
	}

	id, err := g.client.Submit(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", task.ErrSubmission, inv.Task, err)
	}

	ctxlog.FromContext(ctx).Debug("Job submitted to batch queue.", "task", inv.Task, "jobID", id)
	return &gridHandle{name: inv.Task, job: id}, nil
}

// Poll implements Backend. A transient scheduler-communication failure never
// fails the task; the next interval polls again. A job that has left the
// queue resolves through its accounting record.
func (g *GridEngine) Poll(ctx context.Context, h Handle) (Status, error) {
	gh, ok := h.(*gridHandle)
	if !ok {
		return Status{}, fmt.Errorf("foreign handle %T", h)
	}
	logger := ctxlog.FromContext(ctx)

	st, err := g.client.Status(ctx, gh.job)
	if err != nil {
		logger.Warn("Batch scheduler unreachable, will poll again.",
			"task", gh.name, "jobID", gh.job, "error", err)
		return Status{State: task.Submitted}, nil
	}

	switch st.State {
	case sge.StateError:
		return Status{
			State: task.Failed,
			Cause: fmt.Errorf("%w: job %s entered queue error state %q", task.ErrExecution, gh.job, st.Raw),
		}, nil
	case sge.StateDone:
		code, err := g.client.ExitStatus(ctx, gh.job)
		if err != nil {
			// Accounting records lag behind the queue listing.
			logger.Debug("Accounting record not ready yet.", "task", gh.name, "jobID", gh.job, "error", err)
			return Status{State: task.Running}, nil
		}
		if code != 0 {
			return Status{
				State: task.Failed,
				Cause: fmt.Errorf("%w: job %s exited with status %d", task.ErrExecution, gh.job, code),
			}, nil
		}
		return Status{State: task.Succeeded}, nil
	case sge.StateRunning:
		return Status{State: task.Running}, nil
	default:
		// Queued jobs are still waiting for an execution slot.
		return Status{State: task.Submitted}, nil
	}
}

// Cancel implements Backend.
func (g *GridEngine) Cancel(ctx context.Context, h Handle) error {
	gh, ok := h.(*gridHandle)
	if !ok {
		return fmt.Errorf("foreign handle %T", h)
	}
	return g.client.Cancel(ctx, gh.job)
}

// resourceArgs filters the policy's queue args down to hard resource
// directives; routing keys (pe, queue) render through their own flags.
func resourceArgs(queueArgs map[string]string) map[string]string {
	out := make(map[string]string, len(queueArgs))
	for k, v := range queueArgs {
		if k == "pe" || k == "queue" {
			continue
		}
		out[k] = v
	}
	return out
}
