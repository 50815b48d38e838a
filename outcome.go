package ydag

import "fmt"

// Outcome is the run-scoped state of a task within a single DagRun. It lives
// in the run's bookkeeping, never on the Task itself.
type Outcome int

const (
	// Pending means the task has not been dispatched yet.
	Pending Outcome = iota
	// Running means the task body is currently executing.
	Running
	// Success means the body completed and its output was recorded.
	Success
	// Failed means the body returned an error (or panicked).
	Failed
	// Skipped means the task was deliberately not run: named in the run's
	// skip set, skipped by its skip condition, cancelled before dispatch, or
	// a soft-fail task whose body errored.
	Skipped
	// UpstreamFailed means the task was never attempted because a dependency
	// failed or was skipped.
	UpstreamFailed
)

// String returns the canonical uppercase name, as surfaced in logs, run
// summaries, and the history store.
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Success:
		return "SUCCESS"
	case Failed:
		return "FAILED"
	case Skipped:
		return "SKIPPED"
	case UpstreamFailed:
		return "UPSTREAM_FAILED"
	default:
		return fmt.Sprintf("OUTCOME(%d)", int(o))
	}
}

// Terminal reports whether the outcome can no longer change within a run.
func (o Outcome) Terminal() bool {
	switch o {
	case Success, Failed, Skipped, UpstreamFailed:
		return true
	default:
		return false
	}
}

// canTransition is the table of permitted outcome moves. Pending→Success is
// legal only for fallback satisfaction and Running→Skipped only for
// soft-fail tasks; both restrictions are enforced at the call sites, the
// table just keeps every move monotonic.
func canTransition(from, to Outcome) bool {
	switch from {
	case Pending:
		switch to {
		case Running, Success, Skipped, UpstreamFailed:
			return true
		}
	case Running:
		switch to {
		case Success, Failed, Skipped:
			return true
		}
	}
	return false
}
