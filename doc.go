// Package ydag executes dependency graphs of named tasks. Callers declare
// tasks with upstream dependencies and hand one or more of them to a DagRun,
// which discovers the full graph, validates it, and drives every task to a
// terminal outcome: dependencies run first, independent tasks run concurrently
// up to a configurable limit, and a failure propagates to dependents instead
// of aborting the run.
//
// Tasks are immutable and carry no run state, so the same Task values can
// participate in any number of concurrent DagRuns.
package ydag
