package policy

import (
	"fmt"

	"github.com/voxpipe/voxpipe/internal/task"
)

// WorkflowContext carries the run-time lookup keys policy resolution depends
// on besides the task name itself.
type WorkflowContext struct {
	// Workflow selects the workflow-scoped layer, e.g. "registration".
	Workflow string
	// ToolKey is the externally visible tool/interface name, used as the
	// task-layer fallback lookup.
	ToolKey string
}

// Resolver resolves effective policies from immutable documents. Resolve is a
// pure function of the documents and its arguments; there is no process-wide
// configuration state.
type Resolver struct {
	docs *Documents
}

// NewResolver wraps loaded documents in a resolver.
func NewResolver(docs *Documents) *Resolver {
	if docs == nil {
		docs = newDocuments()
	}
	return &Resolver{docs: docs}
}

// Resolve merges the three layers for the named task: process-wide defaults,
// the workflow-scoped entry, then the task-specific entry, each overriding
// only the fields it sets. The task layer is looked up by exact task name,
// then the unqualified stage name, then the tool key. Leaves unset after the
// merge fall back to hard defaults: no submission, no overwrite, minimal
// memory.
func (r *Resolver) Resolve(name task.Name, wctx WorkflowContext) (Resource, error) {
	merged := &entry{}
	merged.merge(r.docs.defaults)
	if w, ok := r.docs.workflows[wctx.Workflow]; ok {
		merged.merge(w)
	}
	if t, ok := r.taskEntry(name, wctx.ToolKey); ok {
		merged.merge(t)
	}

	res := Resource{
		QueueArgs:   map[string]string{"h_vmem": "1G"},
		ExtraParams: make(map[string]any),
	}
	if merged.submit != nil {
		res.Submit = *merged.submit
	}
	if merged.overwrite != nil {
		res.Overwrite = *merged.overwrite
	}
	for k, v := range merged.queueArgs {
		res.QueueArgs[k] = v
	}
	for k, v := range merged.params {
		res.ExtraParams[k] = v
	}

	if raw, ok := res.QueueArgs[WallClockKey]; ok && raw != "" {
		if _, err := ParseWallClock(raw); err != nil {
			return Resource{}, fmt.Errorf("%w: task %s: %v", task.ErrConfiguration, name, err)
		}
	}
	if res.Submit && res.QueueArgs[WallClockKey] == "" {
		return Resource{}, fmt.Errorf(
			"%w: task %s is submit-eligible but no wall-clock limit (%s) is set after merge",
			task.ErrConfiguration, name, WallClockKey)
	}

	return res, nil
}

// taskEntry finds the task-specific layer for the given name, falling back
// from the exact name to the unqualified stage name to the tool key.
func (r *Resolver) taskEntry(name task.Name, toolKey string) (*entry, bool) {
	if e, ok := r.docs.tasks[string(name)]; ok {
		return e, true
	}
	if stage := name.Stage(); stage != string(name) {
		if e, ok := r.docs.tasks[stage]; ok {
			return e, true
		}
	}
	if toolKey != "" {
		if e, ok := r.docs.tasks[toolKey]; ok {
			return e, true
		}
	}
	return nil, false
}
