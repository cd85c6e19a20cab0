package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/observability"
)

// Runtime modes supported by the local executor.
const (
	ModePython = "python"
	ModeShell  = "shell"
	ModeNode   = "node"
)

// tempPrefix starts every temporary code file name.
const tempPrefix = ".finquery-"

// Config holds settings for a Local executor.
type Config struct {
	// WorkDir is the directory the child runs in and where temporary code
	// files are written. Required; must exist.
	WorkDir string

	// Mode selects the interpreter and file extension. Default: "python".
	Mode string

	// Interpreter overrides the mode's interpreter binary (e.g. a venv python).
	Interpreter string

	// Timeout is the wall-clock limit per execution. Default: 30s.
	Timeout time.Duration

	// Env is appended to the parent environment for every child.
	Env []string

	// WaitDelay bounds how long to wait for output pipes after the child
	// is killed. Default: 3s.
	WaitDelay time.Duration
}

// Local runs code as a child process on this host.
type Local struct {
	cfg         Config
	interpreter []string
	ext         string
}

// Ensure Local implements Executor at compile time.
var _ Executor = (*Local)(nil)

// NewLocal creates a local executor. It fails only for configuration that can
// never work (missing or non-directory WorkDir, unknown mode). A missing
// interpreter is reported per execution, see CheckRuntime for a preflight.
func NewLocal(cfg Config) (*Local, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("sandbox: work dir is required")
	}
	abs, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolving work dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: work dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox: work dir %q is not a directory", abs)
	}
	cfg.WorkDir = abs

	if cfg.Mode == "" {
		cfg.Mode = ModePython
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 3 * time.Second
	}

	interpreter, ext, err := modeConfig(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if cfg.Interpreter != "" {
		interpreter = []string{cfg.Interpreter}
	}

	return &Local{cfg: cfg, interpreter: interpreter, ext: ext}, nil
}

// modeConfig returns the interpreter command and file extension for a mode.
func modeConfig(mode string) ([]string, string, error) {
	switch mode {
	case ModePython:
		return []string{"python3"}, ".py", nil
	case ModeShell:
		return []string{"bash"}, ".sh", nil
	case ModeNode:
		return []string{"node"}, ".js", nil
	default:
		return nil, "", fmt.Errorf("sandbox: unsupported mode %q (supported: python, shell, node)", mode)
	}
}

// WorkDir returns the absolute working directory.
func (l *Local) WorkDir() string {
	return l.cfg.WorkDir
}

// Timeout returns the effective per-execution timeout.
func (l *Local) Timeout() time.Duration {
	return l.cfg.Timeout
}

// CheckRuntime reports whether the interpreter is available in PATH.
func (l *Local) CheckRuntime() error {
	if _, err := exec.LookPath(l.interpreter[0]); err != nil {
		return fmt.Errorf("sandbox: mode=%s but %q not found in PATH", l.cfg.Mode, l.interpreter[0])
	}
	return nil
}

// Execute writes code to a private temporary file inside the work dir, runs
// it with the configured timeout, and removes the file again.
func (l *Local) Execute(ctx context.Context, code string) ExecutionResult {
	start := time.Now()
	result := l.execute(ctx, code)
	result.Duration = time.Since(start)

	status := "success"
	switch {
	case result.ExitCode == FailureExitCode:
		status = "failed"
	case !result.Succeeded:
		status = "error"
	}
	observability.SandboxExecutionsTotal.WithLabelValues("local", status).Inc()
	observability.SandboxDuration.WithLabelValues("local").Observe(result.Duration.Seconds())

	slog.Info("execute complete",
		"backend", "local",
		"status", status,
		"exit_code", result.ExitCode,
		"duration_ms", result.Duration.Milliseconds(),
		"stdout_len", len(result.Stdout),
	)
	debug.Log("sandbox", "execute output",
		"stdout", debug.Truncate(result.Stdout, 200),
		"stderr", debug.Truncate(result.Stderr, 200),
	)

	return result
}

func (l *Local) execute(ctx context.Context, code string) ExecutionResult {
	codePath, err := l.writeCode(code)
	if err != nil {
		return Failed(err.Error())
	}
	defer l.removeCode(codePath)

	debug.Log("sandbox", "execute request",
		"file", filepath.Base(codePath),
		"code", debug.Truncate(code, 120),
		"timeout", l.cfg.Timeout,
	)

	runCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, l.interpreter[1:]...), codePath)
	cmd := exec.CommandContext(runCtx, l.interpreter[0], args...)
	cmd.Dir = l.cfg.WorkDir
	cmd.Env = append(os.Environ(), l.cfg.Env...)
	cmd.WaitDelay = l.cfg.WaitDelay
	isolateProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	if runErr == nil {
		return Completed(stdoutBuf.String(), stderrBuf.String(), 0)
	}

	// Deadline takes precedence over the exit error: a killed child reports
	// a signal exit that says nothing useful.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return TimedOut(l.cfg.Timeout)
	}
	if ctx.Err() != nil {
		stderr := appendLine(stderrBuf.String(), fmt.Sprintf("execution cancelled: %v", ctx.Err()))
		return Completed(stdoutBuf.String(), stderr, FailureExitCode)
	}

	// A child killed by a signal (OOM, segfault) reports exit code -1; what
	// it wrote before dying is kept, followed by the signal.
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return Completed(stdoutBuf.String(), stderrBuf.String(), code)
		}
		return Completed(stdoutBuf.String(), appendLine(stderrBuf.String(), runErr.Error()), FailureExitCode)
	}

	return Failed(runErr.Error())
}

// appendLine adds line to s on a line of its own.
func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line
}

// writeCode creates a uniquely named file in the work dir. O_EXCL guarantees
// that a concurrent execution can never open the same file.
func (l *Local) writeCode(code string) (string, error) {
	name := tempPrefix + uuid.NewString() + l.ext
	path := filepath.Join(l.cfg.WorkDir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create code file: %w", err)
	}
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		l.removeCode(path)
		return "", fmt.Errorf("failed to write code file: %w", err)
	}
	if err := f.Close(); err != nil {
		l.removeCode(path)
		return "", fmt.Errorf("failed to write code file: %w", err)
	}
	return path, nil
}

// removeCode deletes a code file. Failures are logged only.
func (l *Local) removeCode(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove code file", "path", path, "error", err)
	}
}
