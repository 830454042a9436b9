// Package registry holds the executable units a pipeline run can schedule,
// keyed by stage name. Registration is explicit: each unit maps its stage
// name to a body, a tool key for policy fallback lookup, and its output
// declaration. Duplicate registration is a programmer error and panics.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
)

// Module is the interface all unit modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registration binds an executable unit to its scheduling metadata.
type Registration struct {
	// Unit is the executable body.
	Unit task.Unit
	// ToolKey is the externally visible tool/interface name; the policy
	// resolver falls back to it when no entry matches the task name.
	ToolKey string
	// LocalOnly marks units never worth cluster queueing overhead; the
	// scheduler always runs them in-process.
	LocalOnly bool
	// Outputs declares the unit's output locations for a given working root
	// and session, used by the resume check.
	Outputs func(workRoot, session string) []resume.Target
	// Inputs declares the unit's input locations for a given input root and
	// session.
	Inputs func(inputRoot, session string) map[string]string
}

// Registry holds all registered units for a single application instance.
type Registry struct {
	units map[string]*Registration
	order []string
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{units: make(map[string]*Registration)}
}

// RegisterUnit registers an executable unit under the given stage name.
func (r *Registry) RegisterUnit(name string, reg *Registration) {
	if _, exists := r.units[name]; exists {
		panic(fmt.Sprintf("unit with name '%s' already registered", name))
	}
	if reg == nil || reg.Unit == nil {
		panic(fmt.Sprintf("unit '%s' registered without a body", name))
	}
	slog.Debug("Registering unit.", "name", name, "toolKey", reg.ToolKey, "localOnly", reg.LocalOnly)
	r.units[name] = reg
	r.order = append(r.order, name)
}

// Unit returns the registration for the given stage name.
func (r *Registry) Unit(name string) (*Registration, bool) {
	reg, ok := r.units[name]
	return reg, ok
}

// Names returns all registered unit names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
