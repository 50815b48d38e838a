package pipeline

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhcypma/ydag"
)

// buildFixtureTo loads a single-file pipeline from source and builds it with
// print output going to out.
func buildFixtureTo(t *testing.T, out io.Writer, source string) (*Plan, error) {
	t.Helper()
	dir := t.TempDir()
	path := writePipelineFile(t, dir, "main.hcl", source)
	p, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	return NewBuilder(out).Build(context.Background(), p)
}

func buildFixture(t *testing.T, source string) (*Plan, error) {
	t.Helper()
	return buildFixtureTo(t, io.Discard, source)
}

// runPlan executes a built plan with the options it declared.
func runPlan(t *testing.T, plan *Plan) ydag.Results {
	t.Helper()
	var opts []ydag.RunOption
	if plan.Concurrency > 0 {
		opts = append(opts, ydag.Concurrency(plan.Concurrency))
	}
	if len(plan.Skip) > 0 {
		opts = append(opts, ydag.Skip(plan.Skip...))
	}
	run, err := ydag.NewDagRun(plan.Roots, opts...)
	require.NoError(t, err)
	results, err := run.Run(context.Background())
	require.NoError(t, err)
	return results
}

func TestBuild(t *testing.T) {
	t.Run("builds tasks in file order with resolved dependencies", func(t *testing.T) {
		plan, err := buildFixture(t, `
			task "print" "a" {
				arguments {
					message = "a"
				}
			}

			task "print" "b" {
				depends_on = ["a"]
				arguments {
					message = "b"
				}
			}
		`)
		require.NoError(t, err)

		require.Len(t, plan.Roots, 2)
		assert.Equal(t, "a", plan.Roots[0].Name())
		assert.Equal(t, "b", plan.Roots[1].Name())

		deps := plan.Roots[1].Dependencies()
		require.Len(t, deps, 1)
		assert.Same(t, plan.Roots[0], deps[0])
	})

	t.Run("the built graph executes", func(t *testing.T) {
		var buf bytes.Buffer
		plan, err := buildFixtureTo(t, &buf, `
			locals {
				greeting = "hello from locals"
			}

			task "print" "greet" {
				arguments {
					message = local.greeting
				}
			}
		`)
		require.NoError(t, err)

		results := runPlan(t, plan)
		assert.Equal(t, ydag.Success, results["greet"].Outcome)
		assert.Equal(t, "hello from locals", results["greet"].Output)
		assert.Contains(t, buf.String(), "hello from locals")
	})

	t.Run("collects skip names and concurrency into the plan", func(t *testing.T) {
		plan, err := buildFixture(t, `
			concurrency = 3

			task "print" "kept" {
				arguments {
					message = "kept"
				}
			}

			task "print" "dropped" {
				skip = true
				arguments {
					message = "dropped"
				}
			}
		`)
		require.NoError(t, err)

		assert.Equal(t, 3, plan.Concurrency)
		assert.Equal(t, []string{"dropped"}, plan.Skip)

		results := runPlan(t, plan)
		assert.Equal(t, ydag.Success, results["kept"].Outcome)
		assert.Equal(t, ydag.Skipped, results["dropped"].Outcome)
	})

	t.Run("rejects an empty pipeline", func(t *testing.T) {
		_, err := buildFixture(t, `
			concurrency = 2
		`)
		var vErr *ydag.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("rejects a duplicate task name", func(t *testing.T) {
		_, err := buildFixture(t, `
			task "print" "same" {
				arguments {
					message = "one"
				}
			}

			task "exec" "same" {
				arguments {
					command = "true"
				}
			}
		`)
		var vErr *ydag.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Error(), `"same"`)
	})

	t.Run("rejects an unknown dependency name", func(t *testing.T) {
		_, err := buildFixture(t, `
			task "print" "a" {
				depends_on = ["ghost"]
				arguments {
					message = "a"
				}
			}
		`)
		var vErr *ydag.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Error(), `"ghost"`)
	})

	t.Run("rejects a dependency cycle with a witness", func(t *testing.T) {
		_, err := buildFixture(t, `
			task "print" "a" {
				depends_on = ["b"]
				arguments {
					message = "a"
				}
			}

			task "print" "b" {
				depends_on = ["a"]
				arguments {
					message = "b"
				}
			}
		`)
		var cErr *ydag.CycleError
		require.ErrorAs(t, err, &cErr)
		assert.Equal(t, []string{"a", "b", "a"}, cErr.Tasks)
	})

	t.Run("rejects an unknown kind", func(t *testing.T) {
		_, err := buildFixture(t, `
			task "teleport" "a" {
				arguments {
					message = "a"
				}
			}
		`)
		var vErr *ydag.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Error(), `"teleport"`)
	})

	t.Run("rejects an unknown trigger", func(t *testing.T) {
		_, err := buildFixture(t, `
			task "print" "a" {
				trigger = "one_success"
				arguments {
					message = "a"
				}
			}
		`)
		var vErr *ydag.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Error(), `"one_success"`)
	})

	t.Run("rejects a missing arguments block", func(t *testing.T) {
		_, err := buildFixture(t, `
			task "print" "a" {
			}
		`)
		var vErr *ydag.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Error(), "arguments")
	})

	t.Run("rejects a reference to an undefined local", func(t *testing.T) {
		_, err := buildFixture(t, `
			task "print" "a" {
				arguments {
					message = local.missing
				}
			}
		`)
		require.Error(t, err)
		assert.ErrorContains(t, err, `task "a"`)
	})
}
