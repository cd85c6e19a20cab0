package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/finquery/pkg/pipeline"
)

// Logging logs the outcome of every run.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next QueryRunner) QueryRunner {
		return RunnerFunc(func(ctx context.Context, query string) (*pipeline.Result, error) {
			start := time.Now()
			res, err := next.Run(ctx, query)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "query failed", attrs...)
			case res != nil:
				attrs = append(attrs,
					slog.String("run_id", res.RunID),
					slog.Bool("success", res.Success),
				)
				if res.FailedStage != "" {
					attrs = append(attrs, slog.String("failed_stage", string(res.FailedStage)))
				}
				logger.LogAttrs(ctx, slog.LevelInfo, "query answered", attrs...)
			}
			return res, err
		})
	}
}
