package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/provider"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != APIVersion {
			t.Errorf("anthropic-version = %q", got)
		}

		var body messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Model != DefaultModel {
			t.Errorf("model = %q, want default", body.Model)
		}
		if body.MaxTokens != DefaultMaxTokens {
			t.Errorf("max_tokens = %d", body.MaxTokens)
		}
		if body.System != "Write code." {
			t.Errorf("system = %q", body.System)
		}
		if len(body.Messages) != 1 || body.Messages[0].Content != "Execute your task." {
			t.Errorf("messages = %+v", body.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"model": "claude-sonnet-4-20250514",
			"content": [
				{"type": "text", "text": "` + "```python\\nprint(1)\\n" + `"},
				{"type": "text", "text": "` + "```" + `"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 8}
		}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	resp, err := p.Complete(context.Background(), &provider.Request{
		System:   "Write code.",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "Execute your task."}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got, want := resp.Text(), "```python\nprint(1)\n```"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	if len(resp.Parts) != 2 {
		t.Errorf("parts = %d, want 2", len(resp.Parts))
	}
	if resp.Usage.InputTokens != 20 || resp.Usage.OutputTokens != 8 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}

func TestProvider_Complete_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType api.ErrorType
		wantMsg  string
	}{
		{"rate limit", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests exceeded"}}`, api.ErrorTypeTooManyRequests, "Number of requests exceeded"},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, api.ErrorTypeModelError, "Overloaded"},
		{"auth", 401, `not json`, api.ErrorTypeServerError, "backend authentication failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := New(Config{APIKey: "k", BaseURL: srv.URL})
			_, err := p.Complete(context.Background(), &provider.Request{
				Messages: []provider.Message{{Role: provider.RoleUser, Content: "x"}},
			})
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *api.APIError, got %v", err)
			}
			if apiErr.Type != tt.wantType || apiErr.Message != tt.wantMsg {
				t.Errorf("error = %+v", apiErr)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{APIKey: "  "}); err == nil {
		t.Error("expected error for blank API key")
	}
	p, err := New(Config{APIKey: "k", Model: "claude-custom", MaxTokens: 100})
	if err != nil {
		t.Fatal(err)
	}
	if p.model != "claude-custom" || p.maxTokens != 100 || p.baseURL != DefaultBaseURL {
		t.Errorf("provider = %+v", p)
	}
}

func TestProvider_Complete_RequiresMessage(t *testing.T) {
	p, _ := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := p.Complete(context.Background(), &provider.Request{System: "s"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Param != "messages" {
		t.Errorf("expected invalid request on messages, got %v", err)
	}
}
