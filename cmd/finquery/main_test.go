package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/finquery/pkg/config"
	"github.com/rhuss/finquery/pkg/pipeline"
	"github.com/rhuss/finquery/pkg/transport"
)

func strPtr(s string) *string { return &s }

func TestREPL(t *testing.T) {
	var queries []string
	runner := transport.RunnerFunc(func(_ context.Context, q string) (*pipeline.Result, error) {
		queries = append(queries, q)
		if q == "boom" {
			return nil, errors.New("model unavailable")
		}
		return &pipeline.Result{Success: true, Answer: "Tesla trades at $250.", ToolUsed: strPtr("GLOBAL_QUOTE")}, nil
	})

	in := strings.NewReader("\n   \nWhat's the current price of Tesla?\nboom\nQuit\nnever asked\n")
	var out bytes.Buffer
	if err := repl(context.Background(), in, &out, runner, false); err != nil {
		t.Fatalf("repl: %v", err)
	}

	if len(queries) != 2 || queries[0] != "What's the current price of Tesla?" || queries[1] != "boom" {
		t.Errorf("queries = %q", queries)
	}
	text := out.String()
	for _, want := range []string{"💬 You: ", "Tesla trades at $250.", "❌ Error: model unavailable", "👋 Goodbye!"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "GLOBAL_QUOTE") {
		t.Error("tool printed without debug")
	}
}

func TestREPL_EndOfInput(t *testing.T) {
	runner := transport.RunnerFunc(func(context.Context, string) (*pipeline.Result, error) {
		t.Error("runner called")
		return nil, nil
	})
	var out bytes.Buffer
	if err := repl(context.Background(), strings.NewReader(""), &out, runner, false); err != nil {
		t.Fatalf("repl: %v", err)
	}
	if !strings.Contains(out.String(), "Goodbye") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name    string
		res     *pipeline.Result
		debug   bool
		want    []string
		wantNot []string
	}{
		{
			name:    "answer only",
			res:     &pipeline.Result{Success: true, Answer: "AAPL is $190.", ToolUsed: strPtr("GLOBAL_QUOTE")},
			want:    []string{"AAPL is $190."},
			wantNot: []string{"GLOBAL_QUOTE"},
		},
		{
			name: "debug details",
			res: &pipeline.Result{
				RunID:          "run_1",
				Success:        true,
				Answer:         "AAPL is $190.",
				ToolUsed:       strPtr("GLOBAL_QUOTE"),
				GeneratedCode:  strPtr("print(GLOBAL_QUOTE('AAPL'))"),
				RawAPIResponse: strPtr(`{"price": "190"}`),
			},
			debug: true,
			want:  []string{"run_1", "Tool: GLOBAL_QUOTE", "print(GLOBAL_QUOTE('AAPL'))", `{"price": "190"}`, "AAPL is $190."},
		},
		{
			name: "failure",
			res:  &pipeline.Result{Answer: "Failed at selection stage: no SELECTED_TOOL line in response"},
			want: []string{"❌ Failed at selection stage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			printResult(&out, tt.res, tt.debug)
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("missing %q in:\n%s", w, out.String())
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(out.String(), w) {
					t.Errorf("unexpected %q in:\n%s", w, out.String())
				}
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name   string
		cfg    config.AuthConfig
		header string
		want   int
	}{
		{"none admits anonymous", config.AuthConfig{Type: "none"}, "", http.StatusOK},
		{"apikey without key", config.AuthConfig{Type: "apikey", APIKeys: []config.APIKeyConfig{{Key: "k1", Subject: "alice"}}}, "", http.StatusUnauthorized},
		{"apikey with key", config.AuthConfig{Type: "apikey", APIKeys: []config.APIKeyConfig{{Key: "k1", Subject: "alice"}}}, "Bearer k1", http.StatusOK},
		{"apikey wrong key", config.AuthConfig{Type: "apikey", APIKeys: []config.APIKeyConfig{{Key: "k1", Subject: "alice"}}}, "Bearer k2", http.StatusUnauthorized},
		{"jwt without token", config.AuthConfig{Type: "jwt", JWT: config.JWTConfig{Secret: "s3cret"}}, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, err := authMiddleware(tt.cfg)
			if err != nil {
				t.Fatalf("authMiddleware: %v", err)
			}
			req := httptest.NewRequest(http.MethodPost, "/query", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mw(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_RateLimit(t *testing.T) {
	mw, err := authMiddleware(config.AuthConfig{Type: "none", RateLimit: config.RateLimitConfig{DefaultRPM: 1}})
	if err != nil {
		t.Fatal(err)
	}
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 2)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", nil))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestAuthMiddleware_Errors(t *testing.T) {
	if _, err := authMiddleware(config.AuthConfig{Type: "ldap"}); err == nil {
		t.Error("expected error for unknown auth type")
	}
	if _, err := authMiddleware(config.AuthConfig{Type: "jwt"}); err == nil {
		t.Error("expected error for jwt without keys")
	}
}

func TestShipPattern(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"servers/alphavantage", "servers/**/*.py"},
		{"./servers/alphavantage/", "servers/**/*.py"},
		{"tools", "tools/**/*.py"},
		{".", "**/*.py"},
	}
	for _, tt := range tests {
		if got := shipPattern(tt.dir); got != tt.want {
			t.Errorf("shipPattern(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestNewApp_MissingKeys(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sandbox.WorkDir = t.TempDir()
	cfg.Pipeline.Registry = false

	if _, err := newApp(context.Background(), &cfg, true); err == nil || !strings.Contains(err.Error(), "alpha_vantage_api_key") {
		t.Fatalf("err = %v, want missing key error", err)
	}

	a, err := newApp(context.Background(), &cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close(context.Background())
	if a.pipeline != nil {
		t.Error("pipeline built without keys")
	}
	if a.store == nil || a.backend != "memory" {
		t.Errorf("store = %v backend = %q", a.store, a.backend)
	}

	ac := adapterConfig(&cfg, a)
	if ac.Checks["alpha_vantage_api_key"] || ac.Checks["anthropic_api_key"] {
		t.Errorf("checks = %v", ac.Checks)
	}
	if _, err := queryRunner(a).Run(context.Background(), "AAPL"); err == nil {
		t.Error("expected error from unconfigured runner")
	}
}

func TestNewStore(t *testing.T) {
	s, backend, err := newStore(context.Background(), config.StorageConfig{Type: "none"})
	if err != nil || s != nil || backend != "none" {
		t.Errorf("none: store=%v backend=%q err=%v", s, backend, err)
	}
	s, backend, err = newStore(context.Background(), config.StorageConfig{Type: "memory", MaxSize: 5})
	if err != nil || s == nil || backend != "memory" {
		t.Errorf("memory: store=%v backend=%q err=%v", s, backend, err)
	}
}
