// Package agent turns a system instruction into one model reply.
//
// An agent has no memory and no tools: every invocation is a fresh
// conversation with a single fixed user turn. All behavior lives in the
// instruction text, which the pipeline renders per stage.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/provider"
)

// UserTurn is the constant user message sent with every instruction.
const UserTurn = "Execute your task."

// ErrEmptyInstructions is returned when Invoke is called without instructions.
var ErrEmptyInstructions = errors.New("agent: instructions are empty")

// Invoker runs one agent turn.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: honors cancellation and deadlines of the underlying request.
//   - Errors: transport and backend failures are returned wrapped; an
//     empty reply is not an error.
type Invoker interface {
	Invoke(ctx context.Context, instructions string) (string, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, instructions string) (string, error)

// Invoke calls f(ctx, instructions).
func (f InvokerFunc) Invoke(ctx context.Context, instructions string) (string, error) {
	return f(ctx, instructions)
}

// Config holds per-agent request settings.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	// Timeout bounds a single invocation. Zero leaves it to the provider.
	Timeout time.Duration
}

// Agent invokes a provider.
type Agent struct {
	provider provider.Provider
	cfg      Config
}

var _ Invoker = (*Agent)(nil)

// New creates an Agent backed by p.
func New(p provider.Provider, cfg Config) *Agent {
	return &Agent{provider: p, cfg: cfg}
}

// Invoke sends instructions as the system prompt plus UserTurn and returns
// the concatenated text parts of the reply.
func (a *Agent) Invoke(ctx context.Context, instructions string) (string, error) {
	if instructions == "" {
		return "", ErrEmptyInstructions
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	stage := StageFromContext(ctx)
	req := &provider.Request{
		Model:       a.cfg.Model,
		System:      instructions,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: UserTurn}},
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}

	debug.Log("agents", "invoke", "stage", stage, "provider", a.provider.Name(),
		"instructions", debug.Truncate(instructions, 160))
	debug.Trace("agents", "instructions", "stage", stage, "text", instructions)

	start := time.Now()
	resp, err := a.provider.Complete(ctx, req)
	elapsed := time.Since(start)
	observability.AgentLatency.WithLabelValues(a.provider.Name(), stage).Observe(elapsed.Seconds())

	if err != nil {
		observability.AgentRequestsTotal.WithLabelValues(a.provider.Name(), stage, statusLabel(err)).Inc()
		slog.Warn("agent invocation failed",
			"stage", stage,
			"provider", a.provider.Name(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return "", fmt.Errorf("agent %s: %w", a.provider.Name(), err)
	}
	observability.AgentRequestsTotal.WithLabelValues(a.provider.Name(), stage, "ok").Inc()

	text := resp.Text()
	debug.Log("agents", "reply", "stage", stage, "duration_ms", elapsed.Milliseconds(),
		"text", debug.Truncate(text, 200))
	debug.Trace("agents", "reply text", "stage", stage, "text", text)

	return text, nil
}

func statusLabel(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Type)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

type stageKey struct{}

// WithStage labels ctx with the pipeline stage an invocation serves. The
// label appears in logs and metrics only.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFromContext returns the stage label, or "unknown".
func StageFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
