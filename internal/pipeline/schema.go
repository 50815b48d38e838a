package pipeline

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// argsBlock represents the content of the 'arguments' block within a task.
// The body is decoded later against the input schema of the task's kind.
type argsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// localsBlock represents a `locals` block. Its attributes become constants
// available to task arguments as `local.<name>`.
type localsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// taskBlock represents a `task` block from a pipeline file. The first label
// selects the kind (the Go body to run), the second names the task.
type taskBlock struct {
	Kind      string     `hcl:"kind,label"`
	Name      string     `hcl:"name,label"`
	DependsOn []string   `hcl:"depends_on,optional"`
	Skip      bool       `hcl:"skip,optional"`
	Stateless bool       `hcl:"stateless,optional"`
	SoftFail  bool       `hcl:"soft_fail,optional"`
	Trigger   string     `hcl:"trigger,optional"`
	Arguments *argsBlock `hcl:"arguments,block"`
}

// fileRoot decodes all supported top-level blocks from one pipeline file.
type fileRoot struct {
	Concurrency *int           `hcl:"concurrency,optional"`
	Locals      []*localsBlock `hcl:"locals,block"`
	Tasks       []*taskBlock   `hcl:"task,block"`
	Remain      hcl.Body       `hcl:",remain"`
}

// TaskSpec is the merged, file-order representation of one task block before
// it is bound to a kind and built into the graph.
type TaskSpec struct {
	Kind      string
	Name      string
	DependsOn []string
	Skip      bool
	Stateless bool
	SoftFail  bool
	Trigger   string
	Arguments hcl.Body // nil when the block was omitted
}

// Pipeline is the merged result of loading one or more HCL files.
type Pipeline struct {
	// Concurrency is the worker limit declared at the top level, or zero when
	// no file declares one.
	Concurrency int

	// Locals holds the evaluated `locals` attributes from all files.
	Locals map[string]cty.Value

	// Tasks lists every task block in file order.
	Tasks []*TaskSpec
}

// evalContext exposes the pipeline's locals to task argument expressions as
// `local.<name>`.
func (p *Pipeline) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"local": cty.ObjectVal(p.Locals),
		},
	}
}
