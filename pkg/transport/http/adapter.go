// Package http serves the query pipeline and its run history over REST.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/history"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/pipeline"
	"github.com/rhuss/finquery/pkg/transport"
)

// Config holds adapter settings.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig
	Version     string
	// Checks are reported by /healthz. Any false check makes the service
	// degraded and POST /query answer 500.
	Checks map[string]bool
	// ToolCount is reported by /healthz.
	ToolCount int
	// HistoryBackend names the store in /healthz ("memory", "postgres").
	HistoryBackend string
	// DisableMetrics drops the /metrics route.
	DisableMetrics bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20,
		Validation:  api.DefaultValidationConfig(),
		Version:     "dev",
	}
}

// Adapter routes REST requests to the pipeline and the history store.
type Adapter struct {
	runner   transport.QueryRunner
	store    history.Store
	inflight *transport.InFlight
	mux      *http.ServeMux
	cfg      Config
	wrap     []func(http.Handler) http.Handler
}

// NewAdapter builds the routes. store may be nil, in which case the /runs
// endpoints answer 503. Middleware is applied to runner in order.
func NewAdapter(runner transport.QueryRunner, store history.Store, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		runner = transport.Chain(middlewares...)(runner)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		runner:   runner,
		store:    store,
		inflight: transport.NewInFlight(),
		mux:      http.NewServeMux(),
		cfg:      cfg,
	}
	a.mux.HandleFunc("GET /{$}", a.handleInfo)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("POST /query", a.handleQuery)
	a.mux.HandleFunc("GET /runs/{id}", a.handleGetRun)
	a.mux.HandleFunc("GET /runs", a.handleListRuns)
	if !cfg.DisableMetrics {
		a.mux.Handle("GET /metrics", promhttp.Handler())
	}
	return a
}

// Use adds HTTP middleware (such as authentication) between the request
// ID and metrics layers and the routes. The first added is outermost.
func (a *Adapter) Use(mw func(http.Handler) http.Handler) {
	a.wrap = append(a.wrap, mw)
}

// Handler returns the complete handler.
func (a *Adapter) Handler() http.Handler {
	var h http.Handler = a.mux
	for i := len(a.wrap) - 1; i >= 0; i-- {
		h = a.wrap[i](h)
	}
	return requestIDMiddleware(observability.MetricsMiddleware(h))
}

// InFlight exposes the tracker of running queries.
func (a *Adapter) InFlight() *transport.InFlight {
	return a.inflight
}

// requestIDMiddleware takes X-Request-ID from the request or makes one up,
// and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(transport.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = transport.NewRequestID()
		}
		w.Header().Set(transport.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

func (a *Adapter) handleInfo(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, api.InfoResponse{
		Name:    "finquery",
		Version: a.cfg.Version,
		Endpoints: map[string]string{
			"POST /query":    "Answer a financial data question",
			"GET /runs":      "List recorded runs",
			"GET /runs/{id}": "Fetch one recorded run",
			"GET /healthz":   "Health check",
			"GET /metrics":   "Prometheus metrics",
		},
	})
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:       api.HealthHealthy,
		Checks:       make(map[string]string, len(a.cfg.Checks)+1),
		ToolCount:    a.cfg.ToolCount,
		HistoryStore: a.cfg.HistoryBackend,
	}
	for name, ok := range a.cfg.Checks {
		resp.Checks[name] = "ok"
		if !ok {
			resp.Checks[name] = "missing"
			resp.Status = api.HealthDegraded
		}
	}
	if a.store != nil {
		resp.Checks["history"] = "ok"
		if err := a.store.HealthCheck(r.Context()); err != nil {
			resp.Checks["history"] = err.Error()
			resp.Status = api.HealthDegraded
		}
	}
	transport.WriteJSON(w, http.StatusOK, resp)
}

func (a *Adapter) handleQuery(w http.ResponseWriter, r *http.Request) {
	if missing := a.missingChecks(); len(missing) > 0 {
		transport.WriteAPIError(w, api.NewServerError("missing configuration: "+strings.Join(missing, ", ")))
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodySize)
	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.cfg.MaxBodySize)),
				http.StatusRequestEntityTooLarge)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	if apiErr := api.ValidateQueryRequest(&req, a.cfg.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	ctx, done := a.inflight.Track(r.Context(), transport.RequestIDFromContext(r.Context()))
	defer done()

	res, err := a.runner.Run(ctx, req.Query)
	transport.WriteJSON(w, http.StatusOK, queryResponse(res, err, req.IncludeDebug))
}

func (a *Adapter) missingChecks() []string {
	var missing []string
	for name, ok := range a.cfg.Checks {
		if !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// queryResponse shapes a run outcome. Every outcome is a 200: callers look
// at success and error.
func queryResponse(res *pipeline.Result, err error, debug bool) api.QueryResponse {
	if err != nil {
		msg := api.FromError(err).Message
		if errors.Is(err, context.Canceled) {
			msg = "query cancelled"
		}
		return api.QueryResponse{Error: msg}
	}

	resp := api.QueryResponse{
		Success:  res.Success,
		Answer:   res.Answer,
		ToolUsed: res.ToolUsed,
		RunID:    res.RunID,
	}
	if !res.Success {
		resp.Answer = ""
		resp.Error = res.Answer
	}
	if debug {
		resp.DebugInfo = &api.DebugInfo{
			SelectedTool:   res.ToolUsed,
			GeneratedCode:  res.GeneratedCode,
			RawAPIResponse: res.RawAPIResponse,
			FailedStage:    string(res.FailedStage),
			DurationMs:     res.Duration.Milliseconds(),
		}
	}
	return resp
}

func (a *Adapter) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewUnavailableError("run history is not enabled"))
		return
	}
	id := r.PathValue("id")
	if !api.ValidateRunID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed run ID"))
		return
	}

	run, err := a.store.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("run "+id+" not found"))
		return
	}
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError(err.Error()))
		return
	}
	transport.WriteJSON(w, http.StatusOK, record(run))
}

func (a *Adapter) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewUnavailableError("run history is not enabled"))
		return
	}

	q := r.URL.Query()
	opts := history.ListOptions{After: q.Get("after"), Tool: q.Get("tool")}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			transport.WriteAPIError(w, api.NewInvalidRequestError("limit", "limit must be an integer"))
			return
		}
		if apiErr := api.ValidateListLimit(n, a.cfg.Validation); apiErr != nil {
			transport.WriteAPIError(w, apiErr)
			return
		}
		opts.Limit = n
	}
	if opts.After != "" && !api.ValidateRunID(opts.After) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("after", "malformed run ID"))
		return
	}

	page, err := a.store.List(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError(err.Error()))
		return
	}

	list := api.RunList{Object: api.ObjectList, Data: make([]api.RunRecord, 0, len(page.Runs)), HasMore: page.HasMore}
	for _, run := range page.Runs {
		list.Data = append(list.Data, record(run))
	}
	if n := len(list.Data); n > 0 {
		list.FirstID = list.Data[0].ID
		list.LastID = list.Data[n-1].ID
	}
	transport.WriteJSON(w, http.StatusOK, list)
}

func record(run *history.Run) api.RunRecord {
	return api.RunRecord{
		ID:             run.ID,
		Object:         api.ObjectRun,
		Query:          run.Query,
		Success:        run.Success,
		Answer:         run.Answer,
		ToolUsed:       optional(run.ToolUsed),
		GeneratedCode:  optional(run.GeneratedCode),
		CodeHash:       run.CodeHash,
		RawAPIResponse: optional(run.RawAPIResponse),
		FailedStage:    run.FailedStage,
		DurationMs:     run.Duration.Milliseconds(),
		CreatedAt:      run.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
