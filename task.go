package ydag

import (
	"context"
	"fmt"
)

// Outputs holds the completed outputs of a task's dependencies, keyed by
// dependency name. Dependencies that did not reach SUCCESS are absent, which
// can only happen for tasks using the AllDone trigger rule.
type Outputs map[string]any

// Get returns the output recorded for the named dependency.
func (o Outputs) Get(name string) (any, bool) {
	v, ok := o[name]
	return v, ok
}

// Work is a task body: a single unit of work invoked at most once per run.
// The returned value becomes the task's output; a returned error becomes its
// FAILED outcome. Bodies receive the run's context and should honor its
// cancellation where they can.
type Work interface {
	Execute(ctx context.Context, deps Outputs) (any, error)
}

// WorkFunc adapts an ordinary function to the Work interface.
type WorkFunc func(ctx context.Context, deps Outputs) (any, error)

// Execute implements Work.
func (f WorkFunc) Execute(ctx context.Context, deps Outputs) (any, error) {
	return f(ctx, deps)
}

// TriggerRule decides when a task becomes ready relative to its
// dependencies' outcomes.
type TriggerRule int

const (
	// AllSuccess runs the task only once every dependency reached SUCCESS.
	// This is the default.
	AllSuccess TriggerRule = iota
	// AllDone runs the task once every dependency is terminal, regardless of
	// outcome. Cleanup-style tasks use this; their bodies see outputs only
	// for the dependencies that succeeded.
	AllDone
)

// Task is a named unit of work with declared upstream dependencies. A Task
// is immutable once constructed; all run-scoped state belongs to the DagRun
// executing it.
type Task struct {
	name      string
	deps      []*Task
	work      Work
	stateless bool
	softFail  bool
	trigger   TriggerRule
	skipWhen  *Task

	// Fallback nodes terminate with fallbackValue instead of
	// UPSTREAM_FAILED when their upstream does not succeed.
	hasFallback   bool
	fallbackValue any
}

// TaskOption configures a Task at construction.
type TaskOption func(*Task)

// DependsOn declares upstream tasks that must complete before this task may
// start. Duplicates are ignored.
func DependsOn(deps ...*Task) TaskOption {
	return func(t *Task) {
		t.deps = append(t.deps, deps...)
	}
}

// Stateless marks the task's output as living only for the duration of one
// run. The scheduler ignores the flag; consumers such as the run-history
// store use it to decide whether the output is worth keeping.
func Stateless() TaskOption {
	return func(t *Task) {
		t.stateless = true
	}
}

// SoftFail records a body failure as SKIPPED instead of FAILED. The error is
// still retained on the task's result, and dependents are still marked
// UPSTREAM_FAILED, but the run as a whole can end successfully.
func SoftFail() TaskOption {
	return func(t *Task) {
		t.softFail = true
	}
}

// SkipWhen makes cond an additional dependency and skips the task at
// dispatch time when cond's output is the boolean true. Any other output
// lets the task run normally.
func SkipWhen(cond *Task) TaskOption {
	return func(t *Task) {
		t.skipWhen = cond
	}
}

// Trigger overrides the default AllSuccess readiness rule.
func Trigger(rule TriggerRule) TaskOption {
	return func(t *Task) {
		t.trigger = rule
	}
}

// NewTask constructs an immutable task. It returns a *ValidationError when
// the name is empty, the body is nil, or the dependency set is malformed
// (nil entries or a self-dependency).
func NewTask(name string, work Work, opts ...TaskOption) (*Task, error) {
	if name == "" {
		return nil, &ValidationError{Reason: "task name must not be empty"}
	}
	if work == nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("task %q has no body", name)}
	}

	t := &Task{name: name, work: work}
	for _, opt := range opts {
		opt(t)
	}

	if t.skipWhen != nil {
		t.deps = append(t.deps, t.skipWhen)
	}

	seen := make(map[*Task]bool, len(t.deps))
	deps := t.deps[:0]
	for _, dep := range t.deps {
		if dep == nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("task %q has a nil dependency", name)}
		}
		if dep == t {
			return nil, &ValidationError{Reason: fmt.Sprintf("task %q depends on itself", name)}
		}
		if seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	t.deps = deps

	return t, nil
}

// Name returns the task's identity within a run's discovered graph.
func (t *Task) Name() string {
	return t.name
}

// Dependencies returns the task's upstream tasks in declared order.
func (t *Task) Dependencies() []*Task {
	return append([]*Task(nil), t.deps...)
}

// Stateless reports whether the task's output is scoped to a single run.
func (t *Task) Stateless() bool {
	return t.stateless
}
