package api

import "time"

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query        string `json:"query"`
	IncludeDebug bool   `json:"include_debug,omitempty"`
}

// QueryResponse is the body returned by POST /query.
//
// A pipeline that halts at a stage reports Success=false with an empty
// Answer and the stage message in Error. Pointers are nil when the stage
// that would have produced them never ran.
type QueryResponse struct {
	Success   bool       `json:"success"`
	Answer    string     `json:"answer"`
	ToolUsed  *string    `json:"tool_used"`
	RunID     string     `json:"run_id,omitempty"`
	DebugInfo *DebugInfo `json:"debug_info,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// DebugInfo carries intermediate pipeline artifacts.
type DebugInfo struct {
	SelectedTool   *string `json:"selected_tool"`
	GeneratedCode  *string `json:"generated_code"`
	RawAPIResponse *string `json:"raw_api_response"`
	FailedStage    string  `json:"failed_stage,omitempty"`
	DurationMs     int64   `json:"duration_ms"`
}

// RunRecord is a persisted run as returned by the history endpoints.
type RunRecord struct {
	ID             string    `json:"id"`
	Object         string    `json:"object"`
	Query          string    `json:"query"`
	Success        bool      `json:"success"`
	Answer         string    `json:"answer"`
	ToolUsed       *string   `json:"tool_used"`
	GeneratedCode  *string   `json:"generated_code,omitempty"`
	CodeHash       string    `json:"code_hash,omitempty"`
	RawAPIResponse *string   `json:"raw_api_response,omitempty"`
	FailedStage    string    `json:"failed_stage,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunList is the body of GET /runs.
type RunList struct {
	Object  string      `json:"object"`
	Data    []RunRecord `json:"data"`
	HasMore bool        `json:"has_more"`
	FirstID string      `json:"first_id,omitempty"`
	LastID  string      `json:"last_id,omitempty"`
}

// HealthResponse is the body of GET /healthz. Status is "healthy" when all
// required credentials are configured, "degraded" otherwise.
type HealthResponse struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks"`
	ToolCount    int               `json:"tool_count"`
	HistoryStore string            `json:"history_store,omitempty"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// Health statuses.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// Object names used in list and record bodies.
const (
	ObjectRun  = "run"
	ObjectList = "list"
)
