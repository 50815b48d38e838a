package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"

	"github.com/fhcypma/ydag"
	"github.com/fhcypma/ydag/internal/ctxlog"
)

// Plan is an executable pipeline: the built task graph plus the run options
// the pipeline declared for itself.
type Plan struct {
	// Roots holds every task in file order. Passing all tasks as roots keeps
	// tasks without dependents runnable.
	Roots []*ydag.Task

	// Skip names the tasks statically skipped via the `skip` attribute.
	Skip []string

	// Concurrency is the pipeline's declared worker limit, or zero when the
	// pipeline leaves the choice to the caller.
	Concurrency int
}

// kindFunc binds one task spec to the body implementing its kind.
type kindFunc func(spec *TaskSpec, evalCtx *hcl.EvalContext) (ydag.Work, error)

// Builder assembles a loaded pipeline into a task graph.
type Builder struct {
	kinds      map[string]kindFunc
	out        io.Writer
	httpClient *http.Client
}

// NewBuilder creates a builder. Print tasks write to out; nil means stdout.
func NewBuilder(out io.Writer) *Builder {
	if out == nil {
		out = os.Stdout
	}
	b := &Builder{
		out:        out,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	b.kinds = map[string]kindFunc{
		"exec":  b.execKind,
		"http":  b.httpKind,
		"print": b.printKind,
	}
	return b
}

// Build resolves declared dependencies by name, rejects cycles, binds each
// task to its kind body, and returns the runnable plan. Argument expressions
// are evaluated here, so a malformed pipeline fails before anything executes.
func (b *Builder) Build(ctx context.Context, p *Pipeline) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building task graph from pipeline.", "tasks", len(p.Tasks))

	if len(p.Tasks) == 0 {
		return nil, &ydag.ValidationError{Reason: "pipeline declares no tasks"}
	}

	specs := make(map[string]*TaskSpec, len(p.Tasks))
	for _, spec := range p.Tasks {
		if _, exists := specs[spec.Name]; exists {
			return nil, &ydag.ValidationError{Reason: fmt.Sprintf("task name %q is used more than once", spec.Name)}
		}
		specs[spec.Name] = spec
	}

	// Depth-first over declared names, building each task after its
	// dependencies. Tasks are immutable, so a cycle must be caught on the
	// name graph before construction.
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(p.Tasks))
	built := make(map[string]*ydag.Task, len(p.Tasks))
	evalCtx := p.evalContext()
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case onPath:
			return cycleWitness(path, name)
		}
		state[name] = onPath
		path = append(path, name)

		spec := specs[name]
		deps := make([]*ydag.Task, 0, len(spec.DependsOn))
		for _, depName := range spec.DependsOn {
			if _, exists := specs[depName]; !exists {
				return &ydag.ValidationError{Reason: fmt.Sprintf("task %q depends on unknown task %q", name, depName)}
			}
			if err := visit(depName); err != nil {
				return err
			}
			deps = append(deps, built[depName])
		}

		task, err := b.buildTask(spec, deps, evalCtx)
		if err != nil {
			return err
		}
		built[name] = task

		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, spec := range p.Tasks {
		if err := visit(spec.Name); err != nil {
			return nil, err
		}
	}

	plan := &Plan{Concurrency: p.Concurrency}
	for _, spec := range p.Tasks {
		plan.Roots = append(plan.Roots, built[spec.Name])
		if spec.Skip {
			plan.Skip = append(plan.Skip, spec.Name)
		}
	}
	logger.Debug("Task graph built.", "tasks", len(plan.Roots), "skipped", len(plan.Skip))
	return plan, nil
}

// buildTask binds one spec to its kind body and constructs the task.
func (b *Builder) buildTask(spec *TaskSpec, deps []*ydag.Task, evalCtx *hcl.EvalContext) (*ydag.Task, error) {
	kind, ok := b.kinds[spec.Kind]
	if !ok {
		return nil, &ydag.ValidationError{Reason: fmt.Sprintf("task %q has unknown kind %q (want exec, http, or print)", spec.Name, spec.Kind)}
	}
	if spec.Arguments == nil {
		return nil, &ydag.ValidationError{Reason: fmt.Sprintf("task %q: kind %q requires an arguments block", spec.Name, spec.Kind)}
	}

	work, err := kind(spec, evalCtx)
	if err != nil {
		return nil, err
	}

	var opts []ydag.TaskOption
	if len(deps) > 0 {
		opts = append(opts, ydag.DependsOn(deps...))
	}
	if spec.Stateless {
		opts = append(opts, ydag.Stateless())
	}
	if spec.SoftFail {
		opts = append(opts, ydag.SoftFail())
	}
	switch spec.Trigger {
	case "", "all_success":
	case "all_done":
		opts = append(opts, ydag.Trigger(ydag.AllDone))
	default:
		return nil, &ydag.ValidationError{Reason: fmt.Sprintf("task %q has unknown trigger %q (want all_success or all_done)", spec.Name, spec.Trigger)}
	}

	return ydag.NewTask(spec.Name, work, opts...)
}

// cycleWitness reports the dependency loop that made a name reappear on the
// current visit path, in the same shape the engine uses: the loop in
// discovery order with the revisited task repeated at the end.
func cycleWitness(path []string, revisited string) *ydag.CycleError {
	start := 0
	for i, name := range path {
		if name == revisited {
			start = i
			break
		}
	}
	loop := append([]string{}, path[start:]...)
	loop = append(loop, revisited)
	return &ydag.CycleError{Tasks: loop}
}
