package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fhcypma/ydag"
	"github.com/fhcypma/ydag/internal/ctxlog"
	"github.com/fhcypma/ydag/internal/history"
	"github.com/fhcypma/ydag/internal/pipeline"
)

// ErrRunFailed marks an execution that completed with at least one task not
// ending SUCCESS or SKIPPED. Callers use it to distinguish "the pipeline
// failed" from "the pipeline could not be run".
var ErrRunFailed = errors.New("run finished with failures")

// Run loads the configured pipeline, executes it, prints the outcome
// summary, and records the run in history.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	p, err := a.loader.Load(ctx, a.cfg.PipelinePaths...)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	plan, err := a.builder.Build(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to build task graph: %w", err)
	}
	a.logger.Debug("Task graph built.", "task_count", len(plan.Roots))

	opts := []ydag.RunOption{ydag.Concurrency(a.concurrency(plan))}
	if skip := a.skipSet(plan); len(skip) > 0 {
		opts = append(opts, ydag.Skip(skip...))
	}
	run, err := ydag.NewDagRun(plan.Roots, opts...)
	if err != nil {
		return fmt.Errorf("failed to prepare run: %w", err)
	}

	a.logger.Info("🚀 Starting run.", "run_id", run.ID(), "tasks", len(run.Tasks()))
	startedAt := time.Now()
	results, runErr := run.Run(ctx)
	finishedAt := time.Now()
	a.logger.Info("🏁 Run finished.", "run_id", run.ID(), "duration", finishedAt.Sub(startedAt).Round(time.Millisecond))

	a.printSummary(run, results)
	a.recordRun(ctx, run, results, startedAt, finishedAt)

	if runErr != nil {
		return fmt.Errorf("%w: %w", ErrRunFailed, runErr)
	}
	if !results.OK() {
		if err := results.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrRunFailed, err)
		}
		return ErrRunFailed
	}
	return nil
}

// concurrency picks the worker limit: the command-line override, then the
// pipeline's own setting, then the tool default.
func (a *App) concurrency(plan *pipeline.Plan) int {
	if a.cfg.Concurrency > 0 {
		return a.cfg.Concurrency
	}
	if plan.Concurrency > 0 {
		return plan.Concurrency
	}
	return a.toolCfg.Concurrency
}

// skipSet merges the pipeline's own skip marks with those from the command
// line, keeping first-seen order.
func (a *App) skipSet(plan *pipeline.Plan) []string {
	var skip []string
	for _, name := range append(append([]string{}, plan.Skip...), a.cfg.Skip...) {
		if !slices.Contains(skip, name) {
			skip = append(skip, name)
		}
	}
	return skip
}

// printSummary writes the per-task outcome table in plan order.
func (a *App) printSummary(run *ydag.DagRun, results ydag.Results) {
	w := tabwriter.NewWriter(a.outW, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tOUTCOME\tERROR")
	for _, task := range run.Tasks() {
		res := results[task.Name()]
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", task.Name(), res.Outcome, errText)
	}
	w.Flush()
}

// recordRun persists the run. History is best-effort: a storage failure is
// logged and never fails a finished run.
func (a *App) recordRun(ctx context.Context, run *ydag.DagRun, results ydag.Results, startedAt, finishedAt time.Time) {
	if a.cfg.NoHistory {
		return
	}

	store, err := history.NewStore(a.toolCfg.HistoryPath)
	if err != nil {
		a.logger.Warn("History disabled, could not open store.", "path", a.toolCfg.HistoryPath, "error", err)
		return
	}
	defer store.Close()

	rec := history.RunRecord{
		ID:         run.ID(),
		Pipeline:   strings.Join(a.cfg.PipelinePaths, " "),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		OK:         results.OK(),
	}
	for _, task := range run.Tasks() {
		res := results[task.Name()]
		taskRec := history.TaskRecord{
			Name:    task.Name(),
			Outcome: res.Outcome.String(),
		}
		// Stateless outputs live only for the duration of the run.
		if res.Outcome == ydag.Success && !task.Stateless() {
			taskRec.Output = res.Output
		}
		if res.Err != nil {
			taskRec.Error = res.Err.Error()
		}
		rec.Tasks = append(rec.Tasks, taskRec)
	}

	// Recording must survive a cancelled run context.
	if err := store.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		a.logger.Warn("Failed to record run in history.", "run_id", run.ID(), "error", err)
		return
	}
	a.logger.Debug("Run recorded in history.", "run_id", run.ID())
}
