package workflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpipe/voxpipe/internal/registry"
	"github.com/voxpipe/voxpipe/internal/resume"
	"github.com/voxpipe/voxpipe/internal/task"
)

type nopUnit struct{}

func (nopUnit) Run(ctx context.Context, inv *task.Invocation) error { return nil }

// newUnits registers a stub unit for every action.
func newUnits(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, action := range []string{ActionStage, ActionROI, ActionMask, ActionRegister, ActionModel} {
		action := action
		r.RegisterUnit(action, &registry.Registration{
			Unit:    nopUnit{},
			ToolKey: "tool." + action,
			Outputs: func(workRoot, session string) []resume.Target {
				return []resume.Target{resume.Dir{Path: filepath.Join(workRoot, session, action)}}
			},
		})
	}
	return r
}

func names(order []task.Name) []string {
	out := make([]string, len(order))
	for i, n := range order {
		out[i] = string(n)
	}
	return out
}

func TestBuildExpandsUpstreamClosure(t *testing.T) {
	testCases := []struct {
		name    string
		actions []string
		want    []string
	}{
		{
			name:    "model alone pulls in stage, mask and register",
			actions: []string{ActionModel},
			want:    []string{"stage.Sess01", "mask.Sess01", "register.Sess01", "model.Sess01"},
		},
		{
			name:    "roi alone pulls in stage only",
			actions: []string{ActionROI},
			want:    []string{"stage.Sess01", "roi.Sess01"},
		},
		{
			name:    "register pulls in stage and mask but not model",
			actions: []string{ActionRegister},
			want:    []string{"stage.Sess01", "mask.Sess01", "register.Sess01"},
		},
		{
			name:    "stage alone stays alone",
			actions: []string{ActionStage},
			want:    []string{"stage.Sess01"},
		},
		{
			name:    "roi and model cover all five stages",
			actions: []string{ActionROI, ActionModel},
			want:    []string{"stage.Sess01", "roi.Sess01", "mask.Sess01", "register.Sess01", "model.Sess01"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Build(BuildInput{
				Sessions: []string{"Sess01"},
				Actions:  tc.actions,
				Units:    newUnits(t),
				WorkRoot: "/work",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(plan.Order()))
		})
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	units := newUnits(t)

	testCases := []struct {
		name  string
		input BuildInput
	}{
		{
			name:  "mask cannot be requested directly",
			input: BuildInput{Sessions: []string{"S1"}, Actions: []string{ActionMask}, Units: units},
		},
		{
			name:  "unknown action",
			input: BuildInput{Sessions: []string{"S1"}, Actions: []string{"transmogrify"}, Units: units},
		},
		{
			name:  "no sessions",
			input: BuildInput{Actions: []string{ActionStage}, Units: units},
		},
		{
			name:  "no actions",
			input: BuildInput{Sessions: []string{"S1"}, Units: units},
		},
		{
			name:  "no registry",
			input: BuildInput{Sessions: []string{"S1"}, Actions: []string{ActionStage}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, task.ErrConfiguration)
		})
	}
}

func TestBuildRejectsUnregisteredUnit(t *testing.T) {
	r := registry.New()
	r.RegisterUnit(ActionStage, &registry.Registration{Unit: nopUnit{}})

	_, err := Build(BuildInput{
		Sessions: []string{"S1"},
		Actions:  []string{ActionROI},
		Units:    r,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrConfiguration)
	assert.Contains(t, err.Error(), "roi")
}

func TestBuildOrderIsDeterministic(t *testing.T) {
	input := BuildInput{
		Sessions: []string{"Breast003", "Breast001", "Sarcoma002"},
		Actions:  []string{ActionModel, ActionROI},
		Units:    newUnits(t),
		WorkRoot: "/work",
	}

	first, err := Build(input)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Build(input)
		require.NoError(t, err)
		assert.Equal(t, first.Order(), again.Order())
	}

	// Roots drain in session order before any downstream task starts.
	order := names(first.Order())
	assert.Equal(t, []string{"stage.Breast003", "stage.Breast001", "stage.Sarcoma002"}, order[:3])
	assert.Len(t, order, 15)
}

func TestBuildSessionsAreIndependent(t *testing.T) {
	plan, err := Build(BuildInput{
		Sessions: []string{"S1", "S2"},
		Actions:  []string{ActionModel},
		Units:    newUnits(t),
		WorkRoot: "/work",
	})
	require.NoError(t, err)

	for _, n := range plan.Order() {
		deps, err := plan.Graph().Dependencies(string(n))
		require.NoError(t, err)
		for _, dep := range deps {
			assert.Equal(t, n.Session(), task.Name(dep).Session(),
				"dependency %s of %s crosses sessions", dep, n)
		}
	}
}

func TestBuildDescriptorFields(t *testing.T) {
	plan, err := Build(BuildInput{
		Sessions:  []string{"Sarcoma001_Session01"},
		Actions:   []string{ActionModel},
		Units:     newUnits(t),
		WorkRoot:  "/work",
		InputRoot: "/data",
	})
	require.NoError(t, err)

	desc, ok := plan.Task(task.Name("register.Sarcoma001_Session01"))
	require.True(t, ok)
	assert.Equal(t, "register", desc.Unit)
	assert.Equal(t, "tool.register", desc.ToolKey)
	assert.Equal(t, "registration", desc.Workflow)
	assert.Equal(t, "Sarcoma001_Session01", desc.Session)
	assert.Equal(t, filepath.Join("/work", "Sarcoma001_Session01"), desc.WorkDir)
	assert.Equal(t, []task.Name{"stage.Sarcoma001_Session01", "mask.Sarcoma001_Session01"}, desc.Deps)
	require.Len(t, desc.Outputs, 1)

	model, ok := plan.Task(task.Name("model.Sarcoma001_Session01"))
	require.True(t, ok)
	assert.Equal(t, []task.Name{
		"stage.Sarcoma001_Session01",
		"mask.Sarcoma001_Session01",
		"register.Sarcoma001_Session01",
	}, model.Deps)
	assert.Equal(t, "modeling", model.Workflow)
}
