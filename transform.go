package ydag

import (
	"context"
	"fmt"
	"sync/atomic"
)

// derivedSeq numbers generated task names process-wide so that several
// derivations of one source never collide within a run.
var derivedSeq atomic.Uint64

// TransformFunc is a pure post-processing step applied to an upstream
// task's output.
type TransformFunc func(value any) (any, error)

// Transform returns a new task whose single dependency is t and whose body
// applies fn to t's completed output. The receiver is not modified, and its
// own outcome in any run is unaffected. An error (or panic) inside fn
// surfaces as the derived task's FAILED outcome, never as a crash of the
// run.
//
// The derived task's name is generated from the source name; read it back
// with Name when looking the task up in run results.
func (t *Task) Transform(fn TransformFunc) *Task {
	src := t
	name := fmt.Sprintf("%s/transform#%d", src.name, derivedSeq.Add(1))
	return &Task{
		name: name,
		deps: []*Task{src},
		work: WorkFunc(func(_ context.Context, deps Outputs) (any, error) {
			v, ok := deps.Get(src.name)
			if !ok {
				return nil, fmt.Errorf("transform %q: no output recorded for upstream %q", name, src.name)
			}
			return fn(v)
		}),
	}
}

// Fallback returns a new task that passes t's output through unchanged when
// t succeeds, and terminates SUCCESS with value instead when t fails or is
// skipped. The replacement happens without the body running, so tasks
// downstream of the fallback stay runnable even though t itself did not
// succeed.
func (t *Task) Fallback(value any) *Task {
	src := t
	return &Task{
		name: fmt.Sprintf("%s/fallback#%d", src.name, derivedSeq.Add(1)),
		deps: []*Task{src},
		work: WorkFunc(func(_ context.Context, deps Outputs) (any, error) {
			v, _ := deps.Get(src.name)
			return v, nil
		}),
		hasFallback:   true,
		fallbackValue: value,
	}
}
