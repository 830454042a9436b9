package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/policy"
	"github.com/voxpipe/voxpipe/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	units    *registry.Registry
	policies *policy.Documents
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and unit
// registry. Startup failures are installation or configuration defects, so
// they panic; the entrypoint recovers and turns them into a clean exit.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	units := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(units)
	}
	logger.Debug("All units registered.", "count", len(units.Names()))

	// Load the layered policy documents once; resolution during the run is a
	// pure function of this snapshot.
	docs, err := policy.LoadDir(ctx, cfg.ConfigDir)
	if err != nil {
		panic(fmt.Errorf("failed to load policy documents: %w", err))
	}

	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		units:    units,
		policies: docs,
	}
}

// Registry returns the application's unit registry. This is primarily for
// testing.
func (a *App) Registry() *registry.Registry {
	return a.units
}
