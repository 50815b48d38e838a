package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fhcypma/ydag/internal/history"
)

// History writes stored runs to the output writer: the recent-runs table
// when runID is empty, otherwise the task table of that run. A limit of zero
// falls back to the tool config's history limit.
func (a *App) History(ctx context.Context, runID string, limit int) error {
	store, err := history.NewStore(a.toolCfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	if runID != "" {
		return a.printRunTasks(ctx, store, runID)
	}
	if limit <= 0 {
		limit = a.toolCfg.HistoryLimit
	}
	return a.printRuns(ctx, store, limit)
}

func (a *App) printRuns(ctx context.Context, store *history.Store, limit int) error {
	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	w := tabwriter.NewWriter(a.outW, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tPIPELINE\tSTARTED\tDURATION\tRESULT\tTASKS")
	for _, run := range runs {
		result := "FAILED"
		if run.OK {
			result = "OK"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			run.ID,
			run.Pipeline,
			run.StartedAt.Local().Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			result,
			run.TaskCount,
		)
	}
	return w.Flush()
}

func (a *App) printRunTasks(ctx context.Context, store *history.Store, runID string) error {
	tasks, err := store.RunTasks(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list tasks of run %s: %w", runID, err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no history for run %q", runID)
	}

	w := tabwriter.NewWriter(a.outW, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tOUTCOME\tOUTPUT\tERROR")
	for _, task := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", task.Name, task.Outcome, task.Output, task.Error)
	}
	return w.Flush()
}
