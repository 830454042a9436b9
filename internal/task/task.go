// Package task defines the unit of schedulable work: names, descriptors,
// lifecycle states, the executable unit contract, and the error taxonomy
// shared by the graph builder, scheduler, and backends.
package task

import (
	"context"
	"strings"

	"github.com/voxpipe/voxpipe/internal/resume"
)

// Name is a stable, process-unique task identifier. It is the policy lookup
// key and the graph node key. Session-scoped tasks qualify the stage name,
// e.g. "register.Sarcoma001_Session01".
type Name string

// Qualified builds a session-scoped task name.
func Qualified(stage, session string) Name {
	if session == "" {
		return Name(stage)
	}
	return Name(stage + "." + session)
}

// Stage returns the unqualified stage part of the name.
func (n Name) Stage() string {
	if i := strings.IndexByte(string(n), '.'); i >= 0 {
		return string(n)[:i]
	}
	return string(n)
}

// Session returns the qualifier part of the name, or "" when unqualified.
func (n Name) Session() string {
	if i := strings.IndexByte(string(n), '.'); i >= 0 {
		return string(n)[i+1:]
	}
	return ""
}

// Descriptor is one schedulable unit of work in a workflow plan. Dependencies
// are acyclic by construction; the resolved resource policy is attached at
// scheduling time, not at build time.
type Descriptor struct {
	Name Name
	// Deps lists upstream task names in insertion order.
	Deps []Name
	// Unit is the registry key of the executable body.
	Unit string
	// ToolKey is the externally visible tool/interface name, used as the
	// policy lookup fallback when no entry matches the task name.
	ToolKey string
	// Workflow is the policy scope this task resolves under.
	Workflow string
	Session  string
	// LocalOnly marks units that are never worth cluster queueing overhead.
	LocalOnly bool
	WorkDir   string
	Inputs    map[string]string
	// Outputs are the declared locations the resume check inspects.
	Outputs []resume.Target
}

// Invocation is the JSON-serializable execution request handed to a Unit.
// The distributed backend writes it to disk so a cluster job can re-enter
// the binary with `voxpipe unit --invocation FILE`.
type Invocation struct {
	Task     Name              `json:"task"`
	Unit     string            `json:"unit"`
	Session  string            `json:"session,omitempty"`
	Workflow string            `json:"workflow,omitempty"`
	WorkDir  string            `json:"work_dir"`
	Inputs   map[string]string `json:"inputs,omitempty"`
	Outputs  []string          `json:"outputs,omitempty"`
	Params   map[string]any    `json:"params,omitempty"`
}

// Unit is the executable body of a task. Implementations run external tools
// or in-process work and must honor ctx cancellation.
type Unit interface {
	Run(ctx context.Context, inv *Invocation) error
}

// Invocation assembles the execution request for this descriptor with the
// resolved tool parameters.
func (d *Descriptor) Invocation(params map[string]any) *Invocation {
	refs := make([]string, 0, len(d.Outputs))
	for _, out := range d.Outputs {
		refs = append(refs, out.Ref())
	}
	return &Invocation{
		Task:     d.Name,
		Unit:     d.Unit,
		Session:  d.Session,
		Workflow: d.Workflow,
		WorkDir:  d.WorkDir,
		Inputs:   d.Inputs,
		Outputs:  refs,
		Params:   params,
	}
}
