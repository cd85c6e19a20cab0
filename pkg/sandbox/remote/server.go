package remote

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/sandbox"
)

const maxRequestBytes = 10 << 20

// ServerConfig configures a sandbox server.
type ServerConfig struct {
	Mode          string
	Interpreter   string
	MaxConcurrent int // default: 3
	// MaxTimeout caps the per-request timeout. Default: 2m.
	MaxTimeout time.Duration
}

// Server executes code posted to /execute in a fresh directory per request,
// using sandbox.Local.
type Server struct {
	cfg         ServerConfig
	currentLoad atomic.Int32
	startTime   time.Time
}

// NewServer returns a Server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 2 * time.Minute
	}
	if cfg.Mode == "" {
		cfg.Mode = sandbox.ModePython
	}
	return &Server{cfg: cfg, startTime: time.Now()}
}

// Handler returns the routes: POST /execute and GET /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	current := s.currentLoad.Add(1)
	defer s.currentLoad.Add(-1)
	if int(current) > s.cfg.MaxConcurrent {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.cfg.MaxConcurrent))
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = sandbox.DefaultTimeout
	}
	timeout = min(timeout, s.cfg.MaxTimeout)

	slog.Info("execute request",
		"code", debug.Truncate(req.Code, 120),
		"timeout", timeout,
		"files", len(req.Files),
	)

	workDir, err := os.MkdirTemp("", "sandbox-exec-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create temp dir: "+err.Error())
		return
	}
	defer os.RemoveAll(workDir)

	if status, err := writeFiles(workDir, req.Files); err != nil {
		writeError(w, status, err.Error())
		return
	}

	local, err := sandbox.NewLocal(sandbox.Config{
		WorkDir:     workDir,
		Mode:        s.cfg.Mode,
		Interpreter: s.cfg.Interpreter,
		Timeout:     timeout,
		Env:         envList(req.Env),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := local.Execute(r.Context(), req.Code)
	status := StatusSuccess
	switch {
	case result.ExitCode == sandbox.FailureExitCode:
		status = StatusFailed
	case !result.Succeeded:
		status = StatusError
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{
		Status:          status,
		Stdout:          result.Stdout,
		Stderr:          result.Stderr,
		ExitCode:        result.ExitCode,
		ExecutionTimeMs: result.Duration.Milliseconds(),
	})
}

// writeFiles materializes shipped files under dir. Paths must stay inside dir.
func writeFiles(dir string, files map[string]string) (int, error) {
	for name, b64 := range files {
		rel := filepath.FromSlash(name)
		if !filepath.IsLocal(rel) {
			return http.StatusBadRequest, fmt.Errorf("file path %q escapes the work dir", name)
		}
		content, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("failed to decode file %q: %v", name, err)
		}
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return http.StatusInternalServerError, fmt.Errorf("failed to create dir for %q: %v", name, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return http.StatusInternalServerError, fmt.Errorf("failed to write file %q: %v", name, err)
		}
	}
	return 0, nil
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

type healthResponse struct {
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	Capacity    int    `json:"capacity"`
	CurrentLoad int    `json:"current_load"`
	UptimeSecs  int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:      "healthy",
		Mode:        s.cfg.Mode,
		Capacity:    s.cfg.MaxConcurrent,
		CurrentLoad: int(s.currentLoad.Load()),
		UptimeSecs:  int64(time.Since(s.startTime).Seconds()),
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
