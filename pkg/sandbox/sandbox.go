// Package sandbox runs model-generated code in an isolated child process.
//
// The isolation is deliberately modest: a separate process (and process
// group), a pinned working directory, captured output streams, and a hard
// wall-clock timeout. Executors never return errors. Every failure mode,
// from a missing interpreter to a timeout, is folded into the
// ExecutionResult so callers only have to inspect Succeeded.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultTimeout is the wall-clock limit applied when none is configured.
	DefaultTimeout = 30 * time.Second

	// FailureExitCode is reported when the child never produced an exit
	// status of its own: timeouts, launch failures, signal kills and
	// cancellation.
	FailureExitCode = -1
)

// Executor runs a single code segment and reports its outcome.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use; two
//     executions never share a temporary file.
//   - Context: cancellation kills the child; the result reports it.
//   - Errors: never returned; see ExecutionResult.Succeeded.
//   - Ownership: the returned result is immutable and caller-owned.
type Executor interface {
	Execute(ctx context.Context, code string) ExecutionResult
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, code string) ExecutionResult

// Execute calls f(ctx, code).
func (f ExecutorFunc) Execute(ctx context.Context, code string) ExecutionResult {
	return f(ctx, code)
}

// ExecutionResult is the outcome of one execution.
type ExecutionResult struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Succeeded bool          `json:"succeeded"`
	Duration  time.Duration `json:"duration"`
}

// Output returns stdout for a successful execution and stderr otherwise.
func (r ExecutionResult) Output() string {
	if r.Succeeded {
		return r.Stdout
	}
	return r.Stderr
}

// Completed builds the result for a child that exited on its own.
func Completed(stdout, stderr string, exitCode int) ExecutionResult {
	return ExecutionResult{
		Stdout:    stdout,
		Stderr:    stderr,
		ExitCode:  exitCode,
		Succeeded: exitCode == 0,
	}
}

// Failed builds the result for an execution that could not run to completion.
func Failed(message string) ExecutionResult {
	return ExecutionResult{
		Stderr:   message,
		ExitCode: FailureExitCode,
	}
}

// TimedOut builds the fixed result reported when the timeout fires.
func TimedOut(timeout time.Duration) ExecutionResult {
	return Failed(TimeoutMessage(timeout))
}

// TimeoutMessage renders the stderr text of a timed-out execution, e.g.
// "Execution timed out after 30 seconds".
func TimeoutMessage(timeout time.Duration) string {
	if timeout > 0 && timeout%time.Second == 0 {
		return fmt.Sprintf("Execution timed out after %d seconds", int(timeout/time.Second))
	}
	return fmt.Sprintf("Execution timed out after %s", timeout)
}
