// Package policy resolves the effective resource policy for a task from
// layered HCL configuration documents: process-wide defaults, workflow-scoped
// overrides, and task-specific entries, merged field-by-field with later
// layers winning.
package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WallClockKey is the QueueArgs key holding the wall-clock limit. It is
// required for every submit-eligible task.
const WallClockKey = "h_rt"

// Resource is the effective execution policy for one task.
type Resource struct {
	// Submit routes the task to the batch cluster instead of running it
	// in-process.
	Submit bool
	// Overwrite forces re-execution even when declared outputs exist.
	Overwrite bool
	// QueueArgs carries batch scheduler directives as authored: wall-clock
	// limit (h_rt), memory reservation (mf), memory ceiling (h_vmem),
	// parallel environment (pe), queue name (queue).
	QueueArgs map[string]string
	// ExtraParams passes tool-specific values through to the unit untouched.
	ExtraParams map[string]any
}

// WallClock returns the parsed wall-clock limit and whether one is set.
// Resolve validates the format, so a set value always parses here.
func (r Resource) WallClock() (time.Duration, bool) {
	raw, ok := r.QueueArgs[WallClockKey]
	if !ok || raw == "" {
		return 0, false
	}
	d, err := ParseWallClock(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}

// ParseWallClock parses a Grid Engine style wall-clock limit: "H:MM:SS",
// "MM:SS", or plain seconds.
func ParseWallClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid wall-clock limit %q", s)
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid wall-clock limit %q", s)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

// entry is one policy fragment as authored in a document layer. Pointer
// fields distinguish "unset" from zero values so a merge only overrides what
// a layer actually sets.
type entry struct {
	submit    *bool
	overwrite *bool
	queueArgs map[string]string
	params    map[string]any
}

// merge applies o over e. Scalars replace only when o sets them; maps merge
// key-by-key with o winning.
func (e *entry) merge(o *entry) {
	if o == nil {
		return
	}
	if o.submit != nil {
		v := *o.submit
		e.submit = &v
	}
	if o.overwrite != nil {
		v := *o.overwrite
		e.overwrite = &v
	}
	if len(o.queueArgs) > 0 {
		if e.queueArgs == nil {
			e.queueArgs = make(map[string]string, len(o.queueArgs))
		}
		for k, v := range o.queueArgs {
			e.queueArgs[k] = v
		}
	}
	if len(o.params) > 0 {
		if e.params == nil {
			e.params = make(map[string]any, len(o.params))
		}
		for k, v := range o.params {
			e.params[k] = v
		}
	}
}

// Documents is the immutable, merged view of every policy file loaded at
// process start.
type Documents struct {
	defaults  *entry
	workflows map[string]*entry
	tasks     map[string]*entry
}

func newDocuments() *Documents {
	return &Documents{
		defaults:  &entry{},
		workflows: make(map[string]*entry),
		tasks:     make(map[string]*entry),
	}
}
