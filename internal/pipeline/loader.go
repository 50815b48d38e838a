package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/fhcypma/ydag"
	"github.com/fhcypma/ydag/internal/ctxlog"
)

// Loader parses pipeline HCL files into a merged Pipeline.
type Loader struct{}

// NewLoader creates a new pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file reachable from the given paths and merges the
// result. Files are visited in path order, directories recursively; block
// order within and across files is preserved. Paths that do not exist are
// ignored, but finding no files at all is an error.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Pipeline loader started.", "path_count", len(paths))

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &ydag.ValidationError{Reason: fmt.Sprintf("no .hcl files found under %v", paths)}
	}
	logger.Debug("Discovered pipeline files.", "count", len(files))

	p := &Pipeline{Locals: make(map[string]cty.Value)}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}

		if err := l.mergeFile(p, file, &root); err != nil {
			return nil, err
		}
	}

	logger.Debug("Pipeline loading complete.",
		"tasks", len(p.Tasks), "locals", len(p.Locals), "concurrency", p.Concurrency)
	return p, nil
}

// mergeFile folds one decoded file into the pipeline.
func (l *Loader) mergeFile(p *Pipeline, file string, root *fileRoot) error {
	if root.Concurrency != nil {
		if *root.Concurrency < 1 {
			return &ydag.ValidationError{Reason: fmt.Sprintf("%s: concurrency must be at least 1, got %d", file, *root.Concurrency)}
		}
		if p.Concurrency != 0 {
			return &ydag.ValidationError{Reason: fmt.Sprintf("%s: concurrency is already set by another file", file)}
		}
		p.Concurrency = *root.Concurrency
	}

	for _, block := range root.Locals {
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			return fmt.Errorf("invalid locals block in %s: %w", file, diags)
		}

		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if _, exists := p.Locals[name]; exists {
				return &ydag.ValidationError{Reason: fmt.Sprintf("%s: local %q is defined more than once", file, name)}
			}
			// Locals are constants; they may not reference other locals or
			// task outputs.
			val, diags := attrs[name].Expr.Value(nil)
			if diags.HasErrors() {
				return fmt.Errorf("invalid local %q in %s: %w", name, file, diags)
			}
			p.Locals[name] = val
		}
	}

	for _, block := range root.Tasks {
		spec := &TaskSpec{
			Kind:      block.Kind,
			Name:      block.Name,
			DependsOn: block.DependsOn,
			Skip:      block.Skip,
			Stateless: block.Stateless,
			SoftFail:  block.SoftFail,
			Trigger:   block.Trigger,
		}
		if block.Arguments != nil {
			spec.Arguments = block.Arguments.Body
		}
		p.Tasks = append(p.Tasks, spec)
	}

	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl
// files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && filepath.Ext(p) == ".hcl" {
					if _, wasSeen := seen[p]; !wasSeen {
						allFiles = append(allFiles, p)
						seen[p] = struct{}{}
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if filepath.Ext(path) == ".hcl" {
			if _, wasSeen := seen[path]; !wasSeen {
				allFiles = append(allFiles, path)
				seen[path] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
