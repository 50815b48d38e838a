package ydag

import "strings"

// ValidationError reports a malformed task definition or run construction:
// an empty name, a self-dependency, duplicate names within one discovered
// graph, or a skip set naming an unknown task. It is always returned
// synchronously from a constructor, never during execution.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid task graph: " + e.Reason
}

// CycleError reports that the dependency closure contains a cycle. It is
// returned from NewDagRun before any task body is invoked.
type CycleError struct {
	// Tasks holds the names of the tasks forming the cycle in traversal
	// order, with the first name repeated at the end to close the loop.
	Tasks []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Tasks, " -> ")
}
