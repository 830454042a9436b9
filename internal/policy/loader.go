package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/voxpipe/voxpipe/internal/ctxlog"
	"github.com/voxpipe/voxpipe/internal/fsutil"
	"github.com/voxpipe/voxpipe/internal/task"
)

// fileRoot decodes all recognized top-level blocks from any policy file.
type fileRoot struct {
	Defaults  []*defaultsBlock `hcl:"defaults,block"`
	Workflows []*workflowBlock `hcl:"workflow,block"`
	Tasks     []*taskBlock     `hcl:"task,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type defaultsBlock struct {
	Submit    *bool             `hcl:"submit,optional"`
	Overwrite *bool             `hcl:"overwrite,optional"`
	QueueArgs map[string]string `hcl:"queue_args,optional"`
	Params    hcl.Expression    `hcl:"params,optional"`
}

type workflowBlock struct {
	Name      string            `hcl:"name,label"`
	Submit    *bool             `hcl:"submit,optional"`
	Overwrite *bool             `hcl:"overwrite,optional"`
	QueueArgs map[string]string `hcl:"queue_args,optional"`
	Params    hcl.Expression    `hcl:"params,optional"`
}

type taskBlock struct {
	Name      string            `hcl:"name,label"`
	Submit    *bool             `hcl:"submit,optional"`
	Overwrite *bool             `hcl:"overwrite,optional"`
	QueueArgs map[string]string `hcl:"queue_args,optional"`
	Params    hcl.Expression    `hcl:"params,optional"`
}

// LoadDir parses every .hcl policy document under dir and merges them in
// lexical file order, later files and blocks overriding earlier ones
// field-by-field. The result is immutable for the rest of the process. A
// missing directory yields empty documents, leaving only hard defaults.
func LoadDir(ctx context.Context, dir string) (*Documents, error) {
	logger := ctxlog.FromContext(ctx)
	docs := newDocuments()

	if dir == "" {
		return docs, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		logger.Debug("Policy directory does not exist, hard defaults apply.", "dir", dir)
		return docs, nil
	} else if err != nil {
		return nil, fmt.Errorf("accessing policy directory %s: %w", dir, err)
	}

	files, err := fsutil.FindFilesByExtension(dir, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("discovering policy files under %s: %w", dir, err)
	}

	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: parsing policy file %s: %v", task.ErrConfiguration, file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: decoding policy file %s: %v", task.ErrConfiguration, file, diags)
		}

		for _, b := range root.Defaults {
			e, err := blockEntry(b.Submit, b.Overwrite, b.QueueArgs, b.Params)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: defaults block: %v", task.ErrConfiguration, file, err)
			}
			docs.defaults.merge(e)
		}
		for _, b := range root.Workflows {
			e, err := blockEntry(b.Submit, b.Overwrite, b.QueueArgs, b.Params)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: workflow %q: %v", task.ErrConfiguration, file, b.Name, err)
			}
			upsert(docs.workflows, b.Name, e)
		}
		for _, b := range root.Tasks {
			e, err := blockEntry(b.Submit, b.Overwrite, b.QueueArgs, b.Params)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: task %q: %v", task.ErrConfiguration, file, b.Name, err)
			}
			upsert(docs.tasks, b.Name, e)
		}
	}

	logger.Debug("Policy documents loaded.",
		"dir", dir, "files", len(files),
		"workflows", len(docs.workflows), "tasks", len(docs.tasks))
	return docs, nil
}

func upsert(m map[string]*entry, name string, e *entry) {
	existing, ok := m[name]
	if !ok {
		existing = &entry{}
		m[name] = existing
	}
	existing.merge(e)
}

// blockEntry translates one decoded block into a merge entry, evaluating the
// params expression into plain Go values.
func blockEntry(submit, overwrite *bool, queueArgs map[string]string, params hcl.Expression) (*entry, error) {
	e := &entry{submit: submit, overwrite: overwrite, queueArgs: queueArgs}
	if params == nil {
		return e, nil
	}

	val, diags := params.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating params: %v", diags)
	}
	if val.IsNull() {
		return e, nil
	}

	converted, err := ctyToGo(val)
	if err != nil {
		return nil, fmt.Errorf("converting params: %v", err)
	}
	m, ok := converted.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params must be a mapping, got %T", converted)
	}
	e.params = m
	return e, nil
}
