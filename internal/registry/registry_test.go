package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpipe/voxpipe/internal/task"
)

type nopUnit struct{}

func (nopUnit) Run(context.Context, *task.Invocation) error { return nil }

func TestRegisterUnit(t *testing.T) {
	r := New()
	r.RegisterUnit("stage", &Registration{Unit: nopUnit{}, ToolKey: "dcm2niix"})
	r.RegisterUnit("roi", &Registration{Unit: nopUnit{}, LocalOnly: true})

	reg, ok := r.Unit("stage")
	require.True(t, ok)
	assert.Equal(t, "dcm2niix", reg.ToolKey)

	_, ok = r.Unit("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"stage", "roi"}, r.Names())
}

func TestRegisterUnitPanicsOnDuplicate(t *testing.T) {
	r := New()
	r.RegisterUnit("stage", &Registration{Unit: nopUnit{}})

	assert.Panics(t, func() {
		r.RegisterUnit("stage", &Registration{Unit: nopUnit{}})
	})
}

func TestRegisterUnitPanicsOnMissingBody(t *testing.T) {
	r := New()

	assert.Panics(t, func() {
		r.RegisterUnit("stage", &Registration{})
	})
	assert.Panics(t, func() {
		r.RegisterUnit("stage", nil)
	})
}
