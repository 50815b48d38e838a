package ydag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fhcypma/ydag/internal/ctxlog"
)

// ErrAlreadyRun is returned by Run when a DagRun is used a second time.
// A DagRun is single-use; construct a new one to execute the graph again.
var ErrAlreadyRun = errors.New("ydag: dag run already started")

// DagRun is a single execution attempt over the closure of tasks reachable
// from a set of roots. Construction performs discovery and validation; Run
// drives every task to a terminal outcome.
type DagRun struct {
	id    string
	graph *graph
	conc  int
	skip  map[int]bool

	// mu guards records, seeded, and started. Every outcome transition and
	// the readiness recomputation that follows it happen under this one
	// lock, since completions on different workers race to decrement the
	// same dependent's remaining count.
	mu      sync.Mutex
	records []record
	seeded  bool
	started bool

	wg    sync.WaitGroup
	ready chan int
}

// record is the run-scoped state of one task.
type record struct {
	outcome   Outcome
	output    any
	err       error
	remaining int
}

type runOptions struct {
	concurrency int
	skip        []string
}

// RunOption configures a DagRun at construction.
type RunOption func(*runOptions)

// Concurrency caps the number of task bodies running at once. The default
// of 1 preserves strictly sequential topological execution.
func Concurrency(n int) RunOption {
	return func(o *runOptions) {
		o.concurrency = n
	}
}

// Skip marks the named tasks SKIPPED before execution starts. Their
// dependents are marked UPSTREAM_FAILED exactly as if the tasks had failed.
func Skip(names ...string) RunOption {
	return func(o *runOptions) {
		o.skip = append(o.skip, names...)
	}
}

// NewDagRun discovers the closure of tasks reachable from roots and
// validates it. It returns a *CycleError when the dependency relation is
// cyclic and a *ValidationError for malformed graphs or options; in either
// case no task body has been invoked.
func NewDagRun(roots []*Task, opts ...RunOption) (*DagRun, error) {
	if len(roots) == 0 {
		return nil, &ValidationError{Reason: "at least one root task is required"}
	}

	o := runOptions{concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		return nil, &ValidationError{Reason: fmt.Sprintf("concurrency must be at least 1, got %d", o.concurrency)}
	}

	g, err := discover(roots)
	if err != nil {
		return nil, err
	}

	skip := make(map[int]bool, len(o.skip))
	for _, name := range o.skip {
		idx, ok := g.byName[name]
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("skip set names unknown task %q", name)}
		}
		skip[idx] = true
	}

	return &DagRun{
		id:      uuid.NewString(),
		graph:   g,
		conc:    o.concurrency,
		skip:    skip,
		records: make([]record, len(g.tasks)),
	}, nil
}

// ID returns the unique identifier of this run.
func (r *DagRun) ID() string {
	return r.id
}

// Tasks returns the discovered tasks in discovery order.
func (r *DagRun) Tasks() []*Task {
	return append([]*Task(nil), r.graph.tasks...)
}

// Run executes the graph and blocks until every task has a terminal
// outcome. Task failures never abort the run; they are visible only in the
// returned Results. The returned error is non-nil only when the run was
// reused (ErrAlreadyRun) or ctx was cancelled. On cancellation execution
// stops dispatching, remaining tasks are marked SKIPPED/UPSTREAM_FAILED,
// in-flight bodies are allowed to finish, and the cancellation cause is
// returned alongside the completed Results.
func (r *DagRun) Run(ctx context.Context) (Results, error) {
	logger := ctxlog.FromContext(ctx).With("run_id", r.id)

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	r.started = true

	n := len(r.graph.tasks)
	r.ready = make(chan int, n)
	r.wg.Add(n)

	for i := range r.records {
		r.records[i].remaining = r.graph.indegree[i]
	}

	// Settle the caller's skip set before anything is dispatched: first
	// mark every named task, so a skip request always wins over propagation
	// from another skipped task, then propagate.
	for i := 0; i < n; i++ {
		if r.skip[i] {
			logger.Warn("Skipping task by request.", "task", r.graph.tasks[i].name)
			r.transition(i, Skipped)
			r.wg.Done()
		}
	}
	for i := 0; i < n; i++ {
		if r.skip[i] {
			r.propagateNotRun(logger, i)
		}
	}

	// Seed the ready queue in discovery order. Readiness reached during
	// skip settlement is deferred to this pass so that the initial queue
	// order stays deterministic.
	r.seeded = true
	rootCount := 0
	for i := 0; i < n; i++ {
		if r.records[i].outcome == Pending && r.records[i].remaining == 0 {
			r.ready <- i
			rootCount++
		}
	}
	r.mu.Unlock()
	logger.Debug("Seeded ready queue.", "count", rootCount, "tasks", n)

	logger.Debug("Starting worker pool.", "workers", r.conc)
	for i := 0; i < r.conc; i++ {
		go r.worker(ctx, logger, i)
	}

	logger.Debug("Waiting for all tasks to complete.")
	r.wg.Wait()
	close(r.ready)
	logger.Debug("All tasks completed.")

	results := make(Results, n)
	for i, t := range r.graph.tasks {
		rec := r.records[i]
		results[t.name] = Result{Outcome: rec.outcome, Output: rec.output, Err: rec.err}
	}

	if err := context.Cause(ctx); err != nil {
		return results, err
	}
	return results, nil
}

// worker is the processing loop for one concurrent worker.
func (r *DagRun) worker(ctx context.Context, logger *slog.Logger, id int) {
	logger.Debug("Worker started.", "worker_id", id)
	for idx := range r.ready {
		r.dispatch(ctx, logger, idx)
	}
	logger.Debug("Worker finished.", "worker_id", id)
}

// dispatch takes one ready task from Pending to a terminal outcome and
// propagates the consequences to its dependents.
func (r *DagRun) dispatch(ctx context.Context, logger *slog.Logger, idx int) {
	t := r.graph.tasks[idx]
	taskLogger := logger.With("task", t.name)

	r.mu.Lock()
	if r.records[idx].outcome != Pending {
		r.mu.Unlock()
		return
	}

	if ctx.Err() != nil {
		taskLogger.Warn("Context cancelled, skipping task.")
		r.transition(idx, Skipped)
		r.records[idx].err = context.Cause(ctx)
		r.propagateNotRun(taskLogger, idx)
		r.wg.Done()
		r.mu.Unlock()
		return
	}

	if t.skipWhen != nil {
		cond := r.records[r.graph.index[t.skipWhen]]
		if met, ok := cond.output.(bool); ok && met {
			taskLogger.Info("Skip condition met, skipping task.", "condition", t.skipWhen.name)
			r.transition(idx, Skipped)
			r.propagateNotRun(taskLogger, idx)
			r.wg.Done()
			r.mu.Unlock()
			return
		}
	}

	r.transition(idx, Running)
	deps := r.outputsFor(idx)
	r.mu.Unlock()

	taskLogger.Debug("Task execution starting.")
	output, err := runWork(ctx, t.work, deps)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err == nil:
		taskLogger.Debug("Task execution succeeded.")
		r.transition(idx, Success)
		r.records[idx].output = output
		r.propagateSuccess(taskLogger, idx)
	case t.softFail:
		taskLogger.Warn("Task failed softly, recording skip.", "error", err)
		r.transition(idx, Skipped)
		r.records[idx].err = err
		r.propagateNotRun(taskLogger, idx)
	default:
		taskLogger.Error("Task execution failed.", "error", err)
		r.transition(idx, Failed)
		r.records[idx].err = err
		r.propagateNotRun(taskLogger, idx)
	}
	r.wg.Done()
}

// propagateSuccess unblocks the dependents of a task that reached SUCCESS.
// Callers must hold mu.
func (r *DagRun) propagateSuccess(logger *slog.Logger, from int) {
	for _, dep := range r.graph.dependents[from] {
		rec := &r.records[dep]
		if rec.outcome != Pending {
			continue
		}
		rec.remaining--
		if rec.remaining == 0 {
			logger.Debug("Unlocking dependent task.", "dependent", r.graph.tasks[dep].name)
			r.maybeReady(dep)
		}
	}
}

// propagateNotRun walks the dependents of a task that terminated without
// SUCCESS (failed or skipped), in discovery order. AllDone dependents are
// merely unblocked, fallback nodes convert the miss into their own SUCCESS,
// and everything else becomes UPSTREAM_FAILED transitively. Callers must
// hold mu.
func (r *DagRun) propagateNotRun(logger *slog.Logger, from int) {
	for _, dep := range r.graph.dependents[from] {
		rec := &r.records[dep]
		t := r.graph.tasks[dep]
		switch {
		case rec.outcome != Pending:
			// Already terminal via another upstream path.
		case t.trigger == AllDone:
			rec.remaining--
			if rec.remaining == 0 {
				r.maybeReady(dep)
			}
		case t.hasFallback:
			logger.Warn("Replacing upstream miss with fallback value.",
				"task", t.name, "upstream", r.graph.tasks[from].name)
			r.transition(dep, Success)
			rec.output = t.fallbackValue
			r.wg.Done()
			r.propagateSuccess(logger, dep)
		default:
			logger.Warn("Marking task upstream-failed.",
				"task", t.name, "upstream", r.graph.tasks[from].name)
			r.transition(dep, UpstreamFailed)
			rec.err = fmt.Errorf("upstream task %q did not succeed", r.graph.tasks[from].name)
			r.wg.Done()
			r.propagateNotRun(logger, dep)
		}
	}
}

// maybeReady enqueues a task whose remaining-dependency count reached zero.
// During skip settlement the queue is not live yet; the seeding pass in Run
// picks those tasks up instead, preserving discovery order. Callers must
// hold mu.
func (r *DagRun) maybeReady(idx int) {
	if !r.seeded {
		return
	}
	r.ready <- idx
}

// outputsFor snapshots the successful dependency outputs visible to a task.
// Callers must hold mu.
func (r *DagRun) outputsFor(idx int) Outputs {
	t := r.graph.tasks[idx]
	if len(t.deps) == 0 {
		return nil
	}
	deps := make(Outputs, len(t.deps))
	for _, d := range t.deps {
		rec := r.records[r.graph.index[d]]
		if rec.outcome == Success {
			deps[d.name] = rec.output
		}
	}
	return deps
}

// transition moves a task's outcome, enforcing the monotonic transition
// table. Callers must hold mu.
func (r *DagRun) transition(idx int, to Outcome) {
	from := r.records[idx].outcome
	if !canTransition(from, to) {
		panic(fmt.Sprintf("ydag: illegal outcome transition %s -> %s for task %q",
			from, to, r.graph.tasks[idx].name))
	}
	r.records[idx].outcome = to
}

// runWork invokes a task body, converting panics into errors so a bad body
// cannot take down the run.
func runWork(ctx context.Context, w Work, deps Outputs) (output any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task body panicked: %v", rec)
		}
	}()
	return w.Execute(ctx, deps)
}
