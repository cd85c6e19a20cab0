// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring finquery pipelines and the REST façade.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// SandboxBuckets covers child-process runtimes up to the default timeout.
var SandboxBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

var (
	// PipelineRunsTotal counts completed pipeline runs by outcome
	// (success, failure, error).
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_pipeline_runs_total",
			Help: "Pipeline runs",
		},
		[]string{"outcome"},
	)

	// StageDuration records per-stage wall-clock time in seconds.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finquery_stage_duration_seconds",
			Help:    "Pipeline stage duration",
			Buckets: LLMBuckets,
		},
		[]string{"stage"},
	)

	// StageFailuresTotal counts stages that halted a run.
	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_stage_failures_total",
			Help: "Pipeline stage failures",
		},
		[]string{"stage"},
	)

	// SandboxExecutionsTotal counts code executions by backend and status
	// (success, error, failed).
	SandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_sandbox_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"backend", "status"},
	)

	// SandboxDuration records execution time in seconds by backend.
	SandboxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finquery_sandbox_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: SandboxBuckets,
		},
		[]string{"backend"},
	)

	// AgentRequestsTotal counts agent invocations by provider, stage and status.
	AgentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_agent_requests_total",
			Help: "Agent invocations",
		},
		[]string{"provider", "stage", "status"},
	)

	// AgentLatency records agent round-trip latency in seconds.
	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finquery_agent_latency_seconds",
			Help:    "Agent latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "stage"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ToolCallsTotal counts tool calls made through the gateway.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_tool_calls_total",
			Help: "Tool calls",
		},
		[]string{"tool", "status"},
	)

	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finquery_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finquery_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		PipelineRunsTotal,
		StageDuration,
		StageFailuresTotal,
		SandboxExecutionsTotal,
		SandboxDuration,
		AgentRequestsTotal,
		AgentLatency,
		ProviderTokensTotal,
		ToolCallsTotal,
		RequestsTotal,
		RequestDuration,
		RateLimitRejectedTotal,
	)
}
