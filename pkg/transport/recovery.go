package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/pipeline"
)

// Recovery turns a panic inside a run into a server error.
func Recovery() Middleware {
	return func(next QueryRunner) QueryRunner {
		return RunnerFunc(func(ctx context.Context, query string) (res *pipeline.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in query run",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					res, err = nil, api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Run(ctx, query)
		})
	}
}
