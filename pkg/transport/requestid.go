package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/finquery/pkg/pipeline"
)

// RequestIDHeader carries the request ID in and out of the HTTP adapter.
const RequestIDHeader = "X-Request-ID"

// NewRequestID returns a fresh request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestID makes sure every run has a request ID in its context. An ID
// set by the HTTP adapter from the X-Request-ID header is kept.
func RequestID() Middleware {
	return func(next QueryRunner) QueryRunner {
		return RunnerFunc(func(ctx context.Context, query string) (*pipeline.Result, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Run(ctx, query)
		})
	}
}
