package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Sessions are the imaging sessions to process, named Subject_Session,
	// in the order they should be planned.
	Sessions []string
	// Actions are the requested pipeline stages. Upstream requirements are
	// added automatically when the plan is built.
	Actions []string

	ConfigDir string // layered policy documents (hcl)
	WorkDir   string // pipeline outputs and job material
	InputDir  string // acquired scan and ROI input

	// Local forces every task onto the in-process backend.
	Local bool
	// Resume skips tasks whose declared outputs already exist.
	Resume       bool
	Concurrency  int
	PollInterval time.Duration
	// NotifyURL is an optional socket.io endpoint receiving run events.
	NotifyURL string

	LogFormat string
	LogLevel  string
}

// NewConfig validates a run configuration. Fields the scheduler defaults
// itself, like Concurrency, are not checked here.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Sessions) == 0 {
		return nil, errors.New("at least one session is required")
	}
	if len(cfg.Actions) == 0 {
		return nil, errors.New("at least one action is required")
	}
	if cfg.WorkDir == "" {
		return nil, errors.New("WorkDir is a required configuration field and cannot be empty")
	}
	if cfg.InputDir == "" {
		return nil, errors.New("InputDir is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
