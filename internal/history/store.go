// Package history is a SQLite-backed record of past runs. Each completed run
// is stored with its per-task outcomes so pipelines can be audited after the
// process exits.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is a SQLite-backed persistence layer for run history.
type Store struct{ db *sql.DB }

// RunRecord is one completed run as handed to the store.
type RunRecord struct {
	ID         string
	Pipeline   string
	StartedAt  time.Time
	FinishedAt time.Time
	OK         bool
	Tasks      []TaskRecord
}

// TaskRecord is the terminal state of one task within a run. Output is
// serialized as JSON; leave it nil for tasks whose output should not be
// persisted.
type TaskRecord struct {
	Name    string
	Outcome string
	Output  any
	Error   string
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID         string
	Pipeline   string
	StartedAt  time.Time
	FinishedAt time.Time
	OK         bool
	TaskCount  int
}

// TaskSummary is one task row of a stored run. Output holds the persisted
// JSON, or the empty string when nothing was stored.
type TaskSummary struct {
	Name    string
	Outcome string
	Output  string
	Error   string
}

// NewStore opens (creating if needed) the history database at path and
// applies pending migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		schema, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(schema)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// RecordRun stores one completed run and its task outcomes atomically.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, started_at, finished_at, ok) VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Pipeline,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.OK,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}

	for i, task := range rec.Tasks {
		var output sql.NullString
		if task.Output != nil {
			raw, err := json.Marshal(task.Output)
			if err != nil {
				return fmt.Errorf("serialize output of task %q: %w", task.Name, err)
			}
			output = sql.NullString{String: string(raw), Valid: true}
		}
		var taskErr sql.NullString
		if task.Error != "" {
			taskErr = sql.NullString{String: task.Error, Valid: true}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_tasks (run_id, position, name, outcome, output, error) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, task.Name, task.Outcome, output, taskErr,
		)
		if err != nil {
			return fmt.Errorf("insert task %q of run %s: %w", task.Name, rec.ID, err)
		}
	}

	return tx.Commit()
}

// Runs lists stored runs, most recent first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.pipeline, r.started_at, r.finished_at, r.ok, COUNT(t.name)
		FROM runs r
		LEFT JOIN run_tasks t ON t.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			summary               RunSummary
			startedAt, finishedAt string
		)
		if err := rows.Scan(&summary.ID, &summary.Pipeline, &startedAt, &finishedAt, &summary.OK, &summary.TaskCount); err != nil {
			return nil, err
		}
		if summary.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at of run %s: %w", summary.ID, err)
		}
		if summary.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("parse finished_at of run %s: %w", summary.ID, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// RunTasks lists the task outcomes of one stored run in execution-plan order.
func (s *Store) RunTasks(ctx context.Context, runID string) ([]TaskSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, outcome, output, error
		FROM run_tasks
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []TaskSummary
	for rows.Next() {
		var (
			task            TaskSummary
			output, taskErr sql.NullString
		)
		if err := rows.Scan(&task.Name, &task.Outcome, &output, &taskErr); err != nil {
			return nil, err
		}
		task.Output = output.String
		task.Error = taskErr.String
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
