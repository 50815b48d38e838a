package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/fhcypma/ydag"
	"github.com/fhcypma/ydag/internal/ctxlog"
)

// execInput defines the arguments for the 'exec' kind.
type execInput struct {
	Command string            `hcl:"command"`
	Env     map[string]string `hcl:"env,optional"`
}

// httpInput defines the arguments for the 'http' kind.
type httpInput struct {
	URL    string `hcl:"url"`
	Method string `hcl:"method,optional"`
}

// printInput defines the arguments for the 'print' kind.
type printInput struct {
	Message string `hcl:"message"`
}

// execKind runs a shell command. Its output is an object with the trimmed
// stdout and the exit code; a non-zero exit fails the task.
func (b *Builder) execKind(spec *TaskSpec, evalCtx *hcl.EvalContext) (ydag.Work, error) {
	var input execInput
	if diags := gohcl.DecodeBody(spec.Arguments, evalCtx, &input); diags.HasErrors() {
		return nil, fmt.Errorf("invalid arguments for task %q: %w", spec.Name, diags)
	}
	if strings.TrimSpace(input.Command) == "" {
		return nil, &ydag.ValidationError{Reason: fmt.Sprintf("task %q: command must not be empty", spec.Name)}
	}

	return ydag.WorkFunc(func(ctx context.Context, _ ydag.Outputs) (any, error) {
		logger := ctxlog.FromContext(ctx)
		logger.Info("Running command.", "task", spec.Name, "command", input.Command)

		cmd := exec.CommandContext(ctx, "sh", "-c", input.Command)
		if len(input.Env) > 0 {
			env := os.Environ()
			keys := make([]string, 0, len(input.Env))
			for k := range input.Env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				env = append(env, k+"="+input.Env[k])
			}
			cmd.Env = env
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, fmt.Errorf("failed to run command: %w", err)
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			if msg == "" {
				return nil, fmt.Errorf("command exited with code %d", exitErr.ExitCode())
			}
			return nil, fmt.Errorf("command exited with code %d: %s", exitErr.ExitCode(), msg)
		}

		return map[string]any{
			"stdout":    strings.TrimRight(stdout.String(), "\n"),
			"exit_code": 0,
		}, nil
	}), nil
}

// httpKind performs an HTTP request. Its output is an object with the status
// code and response body; a status of 400 or above fails the task.
func (b *Builder) httpKind(spec *TaskSpec, evalCtx *hcl.EvalContext) (ydag.Work, error) {
	var input httpInput
	if diags := gohcl.DecodeBody(spec.Arguments, evalCtx, &input); diags.HasErrors() {
		return nil, fmt.Errorf("invalid arguments for task %q: %w", spec.Name, diags)
	}
	if input.URL == "" {
		return nil, &ydag.ValidationError{Reason: fmt.Sprintf("task %q: url must not be empty", spec.Name)}
	}
	method := input.Method
	if method == "" {
		method = http.MethodGet
	}

	return ydag.WorkFunc(func(ctx context.Context, _ ydag.Outputs) (any, error) {
		logger := ctxlog.FromContext(ctx)
		logger.Info("Making HTTP request.", "task", spec.Name, "method", method, "url", input.URL)

		req, err := http.NewRequestWithContext(ctx, method, input.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		logger.Info("Received HTTP response.", "task", spec.Name, "status", resp.Status)

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request returned status %s", resp.Status)
		}
		return map[string]any{
			"status_code": resp.StatusCode,
			"body":        string(body),
		}, nil
	}), nil
}

// printKind writes a message followed by the outputs of the task's
// dependencies, sorted by name for consistent output. Its own output is the
// message.
func (b *Builder) printKind(spec *TaskSpec, evalCtx *hcl.EvalContext) (ydag.Work, error) {
	var input printInput
	if diags := gohcl.DecodeBody(spec.Arguments, evalCtx, &input); diags.HasErrors() {
		return nil, fmt.Errorf("invalid arguments for task %q: %w", spec.Name, diags)
	}

	return ydag.WorkFunc(func(ctx context.Context, deps ydag.Outputs) (any, error) {
		ctxlog.FromContext(ctx).Info("Printing message.", "task", spec.Name)

		fmt.Fprintln(b.out, input.Message)

		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(b.out, "  %s = %v\n", name, deps[name])
		}

		return input.Message, nil
	}), nil
}
