package transport

import (
	"context"

	"github.com/rhuss/finquery/pkg/pipeline"
)

// QueryRunner answers one query. *pipeline.Pipeline implements it.
type QueryRunner interface {
	Run(ctx context.Context, query string) (*pipeline.Result, error)
}

// RunnerFunc adapts a function to QueryRunner.
type RunnerFunc func(ctx context.Context, query string) (*pipeline.Result, error)

// Run calls f(ctx, query).
func (f RunnerFunc) Run(ctx context.Context, query string) (*pipeline.Result, error) {
	return f(ctx, query)
}

var _ QueryRunner = (*pipeline.Pipeline)(nil)
