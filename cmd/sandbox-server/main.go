// Command sandbox-server runs the code execution server used by the remote
// and kubernetes sandbox types. It is meant to run inside a sandbox pod.
//
// Configuration:
//
//	SANDBOX_PORT           - Listen port (default: 8080)
//	SANDBOX_MODE           - python, node or shell (default: auto-detect)
//	SANDBOX_INTERPRETER    - Interpreter binary override
//	SANDBOX_MAX_CONCURRENT - Max concurrent executions (default: 3)
//	SANDBOX_MAX_TIMEOUT    - Cap on the per-request timeout (default: 2m)
//	FINQUERY_LOG_LEVEL, FINQUERY_LOG_FORMAT, FINQUERY_DEBUG - logging
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/sandbox"
	"github.com/rhuss/finquery/pkg/sandbox/remote"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sandbox server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	debug.Init(debug.Options{})

	port := envOr("SANDBOX_PORT", "8080")
	maxConcurrent, err := envInt("SANDBOX_MAX_CONCURRENT", 3)
	if err != nil {
		return err
	}
	maxTimeout, err := envDuration("SANDBOX_MAX_TIMEOUT", 2*time.Minute)
	if err != nil {
		return err
	}
	mode := os.Getenv("SANDBOX_MODE")
	if mode == "" {
		if mode = detectMode(); mode == "" {
			return errors.New("no supported runtime found in PATH (tried: python3, node, bash)")
		}
	}

	srv := remote.NewServer(remote.ServerConfig{
		Mode:          mode,
		Interpreter:   os.Getenv("SANDBOX_INTERPRETER"),
		MaxConcurrent: maxConcurrent,
		MaxTimeout:    maxTimeout,
	})
	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      maxTimeout + 30*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sandbox server starting", "port", port, "mode", mode, "max_concurrent", maxConcurrent)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// detectMode picks the first mode whose interpreter is installed.
func detectMode() string {
	for _, c := range []struct{ mode, bin string }{
		{sandbox.ModePython, "python3"},
		{sandbox.ModeNode, "node"},
		{sandbox.ModeShell, "bash"},
	} {
		if _, err := exec.LookPath(c.bin); err == nil {
			return c.mode
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
