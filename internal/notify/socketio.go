package notify

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
)

// SocketIO emits lifecycle events to a socket.io monitor endpoint. The
// connection is established once at construction; after that every emit is
// fire and forget, dropped with a log line when the monitor is unreachable.
type SocketIO struct {
	manager   *socket.Manager
	io        *socket.Socket
	connected atomic.Bool
}

// NewSocketIO connects to the monitor at rawURL, bounded by connectTimeout.
// A monitor that cannot be reached at startup is a configuration problem and
// returns an error; transient drops after that are tolerated.
func NewSocketIO(ctx context.Context, rawURL string, connectTimeout time.Duration) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("monitor", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse monitor URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	n := &SocketIO{manager: manager, io: io}
	ready := make(chan error, 1)

	io.On(types.EventName("connect"), func(...any) {
		n.connected.Store(true)
		logger.Info("Connected to monitor.", "sid", io.Id())
		select {
		case ready <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		var connectErr error
		if len(errs) > 0 {
			connectErr, _ = errs[0].(error)
		}
		if connectErr == nil {
			connectErr = fmt.Errorf("connection refused")
		}
		select {
		case ready <- connectErr:
		default:
		}
	})
	io.On(types.EventName("disconnect"), func(...any) {
		n.connected.Store(false)
		logger.Warn("Monitor connection lost.")
	})

	io.Connect()

	select {
	case err := <-ready:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("connecting to monitor %s: %w", rawURL, err)
		}
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out connecting to monitor %s", rawURL)
	case <-ctx.Done():
		io.Disconnect()
		return nil, ctx.Err()
	}

	return n, nil
}

// Close tears down the monitor connection.
func (n *SocketIO) Close() {
	n.io.Disconnect()
}

func (n *SocketIO) RunStarted(ctx context.Context, runID string, tasks int) {
	n.emit(ctx, "run:started", map[string]any{"run": runID, "tasks": tasks})
}

func (n *SocketIO) TaskFinished(ctx context.Context, runID, name, state, cause string) {
	payload := map[string]any{"run": runID, "task": name, "state": state}
	if cause != "" {
		payload["cause"] = cause
	}
	n.emit(ctx, "task:finished", payload)
}

func (n *SocketIO) RunFinished(ctx context.Context, runID string, failed int, elapsed time.Duration) {
	n.emit(ctx, "run:finished", map[string]any{
		"run":     runID,
		"failed":  failed,
		"elapsed": elapsed.String(),
	})
}

func (n *SocketIO) emit(ctx context.Context, event string, payload map[string]any) {
	if !n.connected.Load() {
		ctxlog.FromContext(ctx).Debug("Monitor not connected, dropping event.", "event", event)
		return
	}
	n.io.Emit(event, payload)
}
