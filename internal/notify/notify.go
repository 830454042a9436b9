// Package notify publishes run lifecycle events to an external monitor.
// Delivery is best effort: a monitor outage must never affect the run
// itself, so implementations log failures and move on.
package notify

import (
	"context"
	"time"
)

// Notifier receives run lifecycle events. Implementations must be safe for
// concurrent use and must not block the caller beyond a short bounded time.
type Notifier interface {
	RunStarted(ctx context.Context, runID string, tasks int)
	TaskFinished(ctx context.Context, runID, name, state, cause string)
	RunFinished(ctx context.Context, runID string, failed int, elapsed time.Duration)
}

// Nop discards all events. It is the default when no monitor is configured.
type Nop struct{}

func (Nop) RunStarted(context.Context, string, int)                      {}
func (Nop) TaskFinished(context.Context, string, string, string, string) {}
func (Nop) RunFinished(context.Context, string, int, time.Duration)      {}
