// Package workflow builds the task graph for a processing run: the fixed
// stage precedence instantiated per session, restricted to the requested
// actions and their mandatory upstream closure.
package workflow

import (
	"fmt"
	"path/filepath"

	"github.com/voxpipe/voxpipe/internal/dag"
	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/task"
)

// The five processing actions.
const (
	ActionStage    = "stage"
	ActionROI      = "roi"
	ActionMask     = "mask"
	ActionRegister = "register"
	ActionModel    = "model"
)

// stageOrder is the canonical insertion order of the stage groups.
var stageOrder = []string{ActionStage, ActionROI, ActionMask, ActionRegister, ActionModel}

// upstream is the fixed precedence table: direct dependencies per action.
// Stage feeds everything, mask feeds register and model, register feeds
// model. The table is hard-coded policy, not discovery, and is acyclic by
// construction.
var upstream = map[string][]string{
	ActionStage:    nil,
	ActionROI:      {ActionStage},
	ActionMask:     {ActionStage},
	ActionRegister: {ActionStage, ActionMask},
	ActionModel:    {ActionStage, ActionMask, ActionRegister},
}

// Requestable lists the actions a run may ask for. Mask is never requested
// directly; it joins a plan as a dependency of register or model.
var Requestable = []string{ActionStage, ActionROI, ActionRegister, ActionModel}

// workflowScope maps each action to its policy workflow scope.
var workflowScope = map[string]string{
	ActionStage:    "staging",
	ActionROI:      "roi",
	ActionMask:     "mask",
	ActionRegister: "registration",
	ActionModel:    "modeling",
}

// BuildInput carries everything the planner needs for one run.
type BuildInput struct {
	// Sessions are the imaging sessions to process, in the order given.
	Sessions []string
	// Actions is the requested subset of Requestable.
	Actions []string
	// Units resolves each action to its registered executable unit.
	Units *registry.Registry
	// WorkRoot is the root of the output tree.
	WorkRoot string
	// InputRoot is where session source data lives.
	InputRoot string
}

// Plan is the immutable result of Build: task descriptors, their dependency
// graph, and a deterministic topological execution order.
type Plan struct {
	graph *dag.Graph
	tasks map[task.Name]*task.Descriptor
	order []task.Name
}

// Build emits exactly the nodes needed to satisfy the requested actions:
// each requested action plus its mandatory upstream closure, instantiated
// once per session. Sessions are independent of each other; dependency edges
// only ever connect tasks of the same session.
func Build(in BuildInput) (*Plan, error) {
	if len(in.Sessions) == 0 {
		return nil, fmt.Errorf("%w: no sessions to process", task.ErrConfiguration)
	}
	if len(in.Actions) == 0 {
		return nil, fmt.Errorf("%w: no actions requested", task.ErrConfiguration)
	}
	if in.Units == nil {
		return nil, fmt.Errorf("%w: no unit registry", task.ErrConfiguration)
	}

	included, err := closure(in.Actions)
	if err != nil {
		return nil, err
	}

	graph := dag.New()
	tasks := make(map[task.Name]*task.Descriptor)

	for _, session := range in.Sessions {
		for _, action := range stageOrder {
			if !included[action] {
				continue
			}
			reg, ok := in.Units.Unit(action)
			if !ok {
				return nil, fmt.Errorf("%w: no unit registered for action %q", task.ErrConfiguration, action)
			}

			name := task.Qualified(action, session)
			desc := &task.Descriptor{
				Name:      name,
				Unit:      action,
				ToolKey:   reg.ToolKey,
				Workflow:  workflowScope[action],
				Session:   session,
				LocalOnly: reg.LocalOnly,
				WorkDir:   filepath.Join(in.WorkRoot, session),
			}
			if reg.Inputs != nil {
				desc.Inputs = reg.Inputs(in.InputRoot, session)
			}
			if reg.Outputs != nil {
				desc.Outputs = reg.Outputs(in.WorkRoot, session)
			}

			graph.AddNode(string(name))
			for _, dep := range upstream[action] {
				depName := task.Qualified(dep, session)
				desc.Deps = append(desc.Deps, depName)
				// stageOrder inserts dependencies before their dependents,
				// so a failure here is a construction defect.
				if err := graph.AddEdge(string(depName), string(name)); err != nil {
					return nil, fmt.Errorf("graph construction defect: %v", err)
				}
			}
			tasks[name] = desc
		}
	}

	// The fixed precedence table is acyclic, so a detected cycle is a
	// construction defect.
	if err := graph.DetectCycles(); err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrCycle, err)
	}

	orderIDs, err := graph.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrCycle, err)
	}
	order := make([]task.Name, len(orderIDs))
	for i, id := range orderIDs {
		order[i] = task.Name(id)
	}

	return &Plan{graph: graph, tasks: tasks, order: order}, nil
}

// closure expands the requested actions with their transitive upstream
// dependencies, rejecting anything outside the requestable set.
func closure(actions []string) (map[string]bool, error) {
	included := make(map[string]bool)

	var add func(action string) error
	add = func(action string) error {
		deps, ok := upstream[action]
		if !ok {
			return fmt.Errorf("%w: unknown action %q", task.ErrConfiguration, action)
		}
		if included[action] {
			return nil
		}
		included[action] = true
		for _, dep := range deps {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, action := range actions {
		requestable := false
		for _, r := range Requestable {
			if r == action {
				requestable = true
				break
			}
		}
		if !requestable {
			return nil, fmt.Errorf("%w: action %q cannot be requested", task.ErrConfiguration, action)
		}
		if err := add(action); err != nil {
			return nil, err
		}
	}
	return included, nil
}

// Order returns the topological execution order. Repeated calls yield the
// same sequence.
func (p *Plan) Order() []task.Name {
	out := make([]task.Name, len(p.order))
	copy(out, p.order)
	return out
}

// Task returns the descriptor for the given name.
func (p *Plan) Task(name task.Name) (*task.Descriptor, bool) {
	desc, ok := p.tasks[name]
	return desc, ok
}

// Graph exposes the dependency graph for scheduling.
func (p *Plan) Graph() *dag.Graph {
	return p.graph
}

// Len returns the number of tasks in the plan.
func (p *Plan) Len() int {
	return len(p.tasks)
}
