package ydag

import (
	"errors"
	"fmt"
	"sort"
)

// Result is the terminal record of one task within a completed run.
type Result struct {
	Outcome Outcome

	// Output holds the value produced by the task; nil unless Outcome is
	// SUCCESS. For a satisfied fallback node this is the fallback value.
	Output any

	// Err holds the body's error for FAILED tasks, the retained error of a
	// soft-failed (SKIPPED) task, the cancellation cause for tasks skipped
	// by cancellation, or the propagation reason for UPSTREAM_FAILED tasks.
	Err error
}

// Results maps task names to their terminal records.
type Results map[string]Result

// OK reports whether every task ended SUCCESS or SKIPPED. This is the
// exit-code contract for hosting CLIs: OK means exit zero.
func (r Results) OK() bool {
	for _, res := range r {
		switch res.Outcome {
		case Success, Skipped:
		default:
			return false
		}
	}
	return true
}

// Err joins the errors of all FAILED tasks, ordered by task name, for
// callers that want failure-as-error rather than inspecting outcomes.
// UPSTREAM_FAILED records are symptoms, not causes, and are left out. Err
// returns nil when nothing failed.
func (r Results) Err() error {
	var failed []string
	for name, res := range r {
		if res.Outcome == Failed {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	var errs []error
	for _, name := range failed {
		errs = append(errs, fmt.Errorf("task %q: %w", name, r[name].Err))
	}
	return errors.Join(errs...)
}
