package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/pipeline"
)

func okRunner(res *pipeline.Result) QueryRunner {
	return RunnerFunc(func(context.Context, string) (*pipeline.Result, error) { return res, nil })
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next QueryRunner) QueryRunner {
			return RunnerFunc(func(ctx context.Context, q string) (*pipeline.Result, error) {
				order = append(order, name+":before")
				res, err := next.Run(ctx, q)
				order = append(order, name+":after")
				return res, err
			})
		}
	}
	runner := RunnerFunc(func(context.Context, string) (*pipeline.Result, error) {
		order = append(order, "run")
		return &pipeline.Result{}, nil
	})

	Chain(mw("outer"), mw("inner"))(runner).Run(context.Background(), "q")

	want := "outer:before,inner:before,run,inner:after,outer:after"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	runner := RequestID()(RunnerFunc(func(ctx context.Context, _ string) (*pipeline.Result, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	}))

	runner.Run(context.Background(), "q")
	if seen == "" {
		t.Error("request ID was not generated")
	}

	runner.Run(ContextWithRequestID(context.Background(), "from-header"), "q")
	if seen != "from-header" {
		t.Errorf("request ID = %q, want the incoming one", seen)
	}
}

func TestRecovery(t *testing.T) {
	runner := Recovery()(RunnerFunc(func(context.Context, string) (*pipeline.Result, error) {
		panic("selection table corrupted")
	}))

	res, err := runner.Run(context.Background(), "q")
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeServerError {
		t.Fatalf("err = %v, want server error", err)
	}
	if !strings.Contains(apiErr.Message, "selection table corrupted") {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	runner := Logging(logger)(okRunner(&pipeline.Result{RunID: "01RUN", FailedStage: pipeline.StageReader}))
	runner.Run(ContextWithRequestID(context.Background(), "req-7"), "q")

	out := buf.String()
	for _, want := range []string{`"msg":"query answered"`, `"run_id":"01RUN"`, `"request_id":"req-7"`, `"failed_stage":"reader"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %s missing %s", out, want)
		}
	}

	buf.Reset()
	failing := Logging(logger)(RunnerFunc(func(context.Context, string) (*pipeline.Result, error) {
		return nil, errors.New("coder stage: connection refused")
	}))
	failing.Run(context.Background(), "q")
	if !strings.Contains(buf.String(), `"level":"ERROR"`) || !strings.Contains(buf.String(), "connection refused") {
		t.Errorf("error log = %s", buf.String())
	}
}
