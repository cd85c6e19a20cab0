// Package history records completed pipeline runs.
//
// Stores implement Store. Saving is best-effort from the pipeline's point
// of view: a failed save is logged and never changes a run's result.
// Reads are scoped to the tenant carried in the context, if any.
package history

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/zeebo/blake3"
)

// Sentinel errors for store operations.
var (
	ErrNotFound = errors.New("run not found")
	ErrConflict = errors.New("run already exists")
)

// List limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Run is one recorded pipeline run.
type Run struct {
	ID             string        `json:"id"`
	Tenant         string        `json:"-"`
	Query          string        `json:"query"`
	Success        bool          `json:"success"`
	Answer         string        `json:"answer"`
	ToolUsed       string        `json:"tool_used,omitempty"`
	GeneratedCode  string        `json:"generated_code,omitempty"`
	CodeHash       string        `json:"code_hash,omitempty"`
	RawAPIResponse string        `json:"raw_api_response,omitempty"`
	FailedStage    string        `json:"failed_stage,omitempty"`
	Duration       time.Duration `json:"duration"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ListOptions filters and pages List results. Runs are returned newest
// first; After is the ID of the last run of the previous page.
type ListOptions struct {
	Limit int
	After string
	Tool  string
}

// EffectiveLimit clamps Limit into [1, MaxListLimit].
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Page is one page of runs.
type Page struct {
	Runs    []*Run
	HasMore bool
}

// Store persists runs.
type Store interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, opts ListOptions) (*Page, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// HashCode returns the hex BLAKE3 digest of generated code, or "" for
// empty code. Identical programs share a hash across runs.
func HashCode(code string) string {
	if code == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

type tenantKey struct{}

// WithTenant scopes store operations made with ctx to tenant.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFrom returns the tenant in ctx, or "" in single-tenant mode.
func TenantFrom(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}
