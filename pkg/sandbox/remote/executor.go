package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/sandbox"
)

// Acquirer hands out a sandbox server URL. The release func must be called
// once the execution is done.
type Acquirer interface {
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// StaticAcquirer always returns the same server.
type StaticAcquirer struct {
	URL string
}

// Acquire returns a.URL.
func (a StaticAcquirer) Acquire(context.Context) (string, func(), error) {
	return a.URL, func() {}, nil
}

// DefaultShipPattern selects the files shipped with every request.
const DefaultShipPattern = "servers/**/*.py"

// Config configures an Executor.
type Config struct {
	// Timeout is sent to the server as the execution limit. Default: 30s.
	Timeout time.Duration
	// SourceDir is the local directory whose files matching ShipPattern are
	// sent with each request, keeping their relative paths.
	SourceDir string
	// ShipPattern is a doublestar glob relative to SourceDir. Default:
	// DefaultShipPattern.
	ShipPattern string
	// Env is added to the remote child environment.
	Env map[string]string
}

// Executor implements sandbox.Executor against a sandbox server. Transport
// failures are reported as failed results, never as errors.
type Executor struct {
	acquirer Acquirer
	client   *Client
	cfg      Config
	files    map[string]string
}

var _ sandbox.Executor = (*Executor)(nil)

// NewExecutor reads the files to ship once and returns an Executor.
func NewExecutor(acquirer Acquirer, cfg Config) (*Executor, error) {
	if acquirer == nil {
		return nil, fmt.Errorf("remote sandbox: acquirer must not be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = sandbox.DefaultTimeout
	}
	if cfg.ShipPattern == "" {
		cfg.ShipPattern = DefaultShipPattern
	}

	e := &Executor{acquirer: acquirer, client: NewClient(cfg.Timeout), cfg: cfg}
	if cfg.SourceDir != "" {
		files, err := collectFiles(cfg.SourceDir, cfg.ShipPattern)
		if err != nil {
			return nil, fmt.Errorf("remote sandbox: %w", err)
		}
		e.files = files
	}
	return e, nil
}

// collectFiles returns base64 content of every file under dir matching
// pattern, keyed by slash-separated relative path.
func collectFiles(dir, pattern string) (map[string]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	files := make(map[string]string, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			return nil, err
		}
		files[m] = base64.StdEncoding.EncodeToString(data)
	}
	return files, nil
}

// Files lists the shipped paths.
func (e *Executor) Files() []string {
	paths := make([]string, 0, len(e.files))
	for p := range e.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Execute acquires a sandbox, runs code there and releases it.
func (e *Executor) Execute(ctx context.Context, code string) sandbox.ExecutionResult {
	start := time.Now()
	result := e.execute(ctx, code)
	result.Duration = time.Since(start)

	status := "success"
	switch {
	case result.ExitCode == sandbox.FailureExitCode:
		status = "failed"
	case !result.Succeeded:
		status = "error"
	}
	observability.SandboxExecutionsTotal.WithLabelValues("remote", status).Inc()
	observability.SandboxDuration.WithLabelValues("remote").Observe(result.Duration.Seconds())

	slog.Info("execute complete",
		"backend", "remote",
		"status", status,
		"exit_code", result.ExitCode,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}

func (e *Executor) execute(ctx context.Context, code string) sandbox.ExecutionResult {
	sandboxURL, release, err := e.acquirer.Acquire(ctx)
	if err != nil {
		return sandbox.Failed(fmt.Sprintf("failed to acquire sandbox: %v", err))
	}
	defer release()

	debug.Log("sandbox", "remote execute", "url", sandboxURL, "files", len(e.files), "code", debug.Truncate(code, 120))

	resp, err := e.client.Execute(ctx, sandboxURL, &Request{
		Code:           code,
		TimeoutSeconds: timeoutSeconds(e.cfg.Timeout),
		Files:          e.files,
		Env:            e.cfg.Env,
	})
	if err != nil {
		slog.Warn("remote execution failed", "url", sandboxURL, "error", err)
		return sandbox.Failed(fmt.Sprintf("sandbox execution failed: %v", err))
	}

	if resp.Status == StatusFailed || resp.ExitCode == sandbox.FailureExitCode {
		r := sandbox.Failed(resp.Stderr)
		r.Stdout = resp.Stdout
		return r
	}
	return sandbox.Completed(resp.Stdout, resp.Stderr, resp.ExitCode)
}

// timeoutSeconds rounds up so sub-second limits do not become zero.
func timeoutSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
