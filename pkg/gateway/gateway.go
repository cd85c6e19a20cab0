// Package gateway exposes the tool client to sandboxed code over a
// loopback HTTP endpoint.
//
// Generated code runs in a child process and cannot share the parent's MCP
// session. The wrappers' call_mcp_tool posts to this gateway instead,
// using the URL and bearer token found in its environment.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/registry"
	"github.com/rhuss/finquery/pkg/toolclient"
)

// Environment variables read by the generated client module.
const (
	EnvURL   = "FINQUERY_TOOL_GATEWAY"
	EnvToken = "FINQUERY_TOOL_TOKEN"
)

// DefaultAddr binds an ephemeral loopback port.
const DefaultAddr = "127.0.0.1:0"

const maxBodyBytes = 1 << 20

// Caller is the tool client seen by the gateway.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) any
	ToolNames(ctx context.Context) ([]string, error)
}

// Config configures a Gateway.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string
	// Token authenticates callers. A random token is generated when empty.
	Token string
	// Registry, when set, validates arguments before calls and answers
	// GET /tools without contacting the server.
	Registry *registry.Registry
	// CallTimeout bounds one tool call. Zero means no limit.
	CallTimeout time.Duration
}

// CallRequest is the body of POST /call.
type CallRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Gateway serves tool calls for child processes.
type Gateway struct {
	caller  Caller
	reg     *registry.Registry
	token   string
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	server *http.Server
	url    string
}

// New returns a gateway that has not started listening.
func New(caller Caller, cfg Config) *Gateway {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Token == "" {
		cfg.Token = uuid.NewString()
	}
	return &Gateway{
		caller:  caller,
		reg:     cfg.Registry,
		token:   cfg.Token,
		addr:    cfg.Addr,
		timeout: cfg.CallTimeout,
	}
}

// Handler returns the gateway routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", g.handleCall)
	mux.HandleFunc("GET /tools", g.handleTools)
	return g.authenticate(mux)
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return errors.New("gateway already started")
	}

	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("gateway listen on %s: %w", g.addr, err)
	}
	g.url = "http://" + ln.Addr().String()
	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := g.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("tool gateway stopped", "error", err)
		}
	}()
	slog.Info("tool gateway listening", "url", g.url)
	return nil
}

// URL returns the base URL once started.
func (g *Gateway) URL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.url
}

// Token returns the bearer token callers must present.
func (g *Gateway) Token() string { return g.token }

// Env returns the child environment entries that point at the gateway.
func (g *Gateway) Env() []string {
	return []string{EnvURL + "=" + g.URL(), EnvToken + "=" + g.token}
}

// Shutdown stops the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.server = nil
	g.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (g *Gateway) authenticate(next http.Handler) http.Handler {
	want := []byte("Bearer " + g.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			debug.Log("gateway", "rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, toolclient.ErrorEnvelope("invalid request body: "+err.Error(), req.Tool, req.Arguments))
		return
	}
	req.Tool = strings.TrimSpace(req.Tool)
	if req.Tool == "" {
		writeJSON(w, http.StatusBadRequest, toolclient.ErrorEnvelope("tool is required", "", req.Arguments))
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	if _, known := g.reg.Get(req.Tool); known {
		if err := g.reg.Validate(req.Tool, req.Arguments); err != nil {
			observability.ToolCallsTotal.WithLabelValues(req.Tool, "invalid").Inc()
			debug.Log("gateway", "arguments rejected", "tool", req.Tool, "error", err)
			writeJSON(w, http.StatusOK, toolclient.ErrorEnvelope(err.Error(), req.Tool, req.Arguments))
			return
		}
	}

	ctx := r.Context()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	result := g.caller.CallTool(ctx, req.Tool, req.Arguments)
	status := "ok"
	if isEnvelope(result) {
		status = "error"
	}
	observability.ToolCallsTotal.WithLabelValues(req.Tool, status).Inc()
	slog.Info("tool call", "tool", req.Tool, "status", status, "duration", time.Since(start))
	debug.Log("gateway", "tool call", "tool", req.Tool, "arguments", req.Arguments)

	writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleTools(w http.ResponseWriter, r *http.Request) {
	var names []string
	if g.reg.Len() > 0 {
		names = g.reg.Names()
	} else {
		var err error
		names, err = g.caller.ToolNames(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": names})
}

// isEnvelope reports whether a result is the client's error envelope.
func isEnvelope(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, hasErr := m["error"]
	_, hasTool := m["tool"]
	return hasErr && hasTool
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing gateway response", "error", err)
	}
}
