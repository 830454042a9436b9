package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxpipe/voxpipe/internal/scheduler"
)

// summaryFile is the YAML shape of the run audit written next to the
// pipeline outputs. States and causes are plain strings so the file stays
// readable without this binary.
type summaryFile struct {
	Run      string         `yaml:"run"`
	Started  time.Time      `yaml:"started"`
	Finished time.Time      `yaml:"finished"`
	Elapsed  string         `yaml:"elapsed"`
	Counts   map[string]int `yaml:"counts"`
	Tasks    []summaryTask  `yaml:"tasks"`
}

type summaryTask struct {
	Name     string `yaml:"name"`
	State    string `yaml:"state"`
	Backend  string `yaml:"backend,omitempty"`
	Retries  int    `yaml:"retries,omitempty"`
	Duration string `yaml:"duration,omitempty"`
	Cause    string `yaml:"cause,omitempty"`
}

// writeSummary persists the run outcome as run-<id>.yaml under the work
// directory and returns the path.
func (a *App) writeSummary(summary *scheduler.RunSummary) (string, error) {
	doc := summaryFile{
		Run:      summary.RunID,
		Started:  summary.Started,
		Finished: summary.Finished,
		Elapsed:  summary.Elapsed().Round(time.Millisecond).String(),
		Counts:   make(map[string]int),
	}
	for state, n := range summary.Counts() {
		doc.Counts[state.String()] = n
	}
	for _, t := range summary.Tasks {
		entry := summaryTask{
			Name:    string(t.Name),
			State:   t.State.String(),
			Backend: t.Backend,
			Retries: t.Retries,
			Cause:   t.Cause,
		}
		if t.Duration > 0 {
			entry.Duration = t.Duration.Round(time.Millisecond).String()
		}
		doc.Tasks = append(doc.Tasks, entry)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("encoding run summary: %w", err)
	}

	if err := os.MkdirAll(a.cfg.WorkDir, 0755); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	path := filepath.Join(a.cfg.WorkDir, fmt.Sprintf("run-%s.yaml", summary.RunID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing run summary: %w", err)
	}
	return path, nil
}
