package openaicompat

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

func TestClient_Complete_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}

		var chatReq ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if chatReq.Model != "default-model" {
			t.Errorf("model = %q, want configured default", chatReq.Model)
		}
		if chatReq.N != 1 || chatReq.Stream {
			t.Errorf("n=%d stream=%v", chatReq.N, chatReq.Stream)
		}
		if len(chatReq.Messages) != 2 {
			t.Fatalf("messages = %d, want 2", len(chatReq.Messages))
		}
		if chatReq.Messages[0].Role != "system" || chatReq.Messages[0].Content != "You select tools." {
			t.Errorf("system message = %+v", chatReq.Messages[0])
		}
		if chatReq.Messages[1].Role != "user" || chatReq.Messages[1].Content != "Execute your task." {
			t.Errorf("user message = %+v", chatReq.Messages[1])
		}
		if chatReq.MaxTokens == nil || *chatReq.MaxTokens != 4096 {
			t.Errorf("max_tokens = %v", chatReq.MaxTokens)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "default-model",
			Choices: []ChatChoice{{
				Message:      ChatMessage{Role: "assistant", Content: "SELECTED_TOOL: GLOBAL_QUOTE"},
				FinishReason: "stop",
			}},
			Usage: &ChatUsage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17},
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "default-model"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Name() != "openai" {
		t.Errorf("Name() = %q", c.Name())
	}

	resp, err := c.Complete(context.Background(), &provider.Request{
		System:    "You select tools.",
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: "Execute your task."}},
		MaxTokens: 4096,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text() != "SELECTED_TOOL: GLOBAL_QUOTE" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.StopReason != "stop" {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}

func TestClient_Complete_HTTPErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType api.ErrorType
		wantMsg  string
	}{
		{"rate limited", 429, `{"error":{"message":"quota exhausted","type":"rate_limit"}}`, api.ErrorTypeTooManyRequests, "quota exhausted"},
		{"server error without body", 502, ``, api.ErrorTypeServerError, "backend server error (HTTP 502)"},
		{"bad request", 400, `{"error":{"message":"unknown model"}}`, api.ErrorTypeInvalidRequest, "unknown model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := New(Config{BaseURL: srv.URL})
			_, err := c.Complete(context.Background(), &provider.Request{Model: "m"})

			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *api.APIError, got %v", err)
			}
			if apiErr.Type != tt.wantType || apiErr.Message != tt.wantMsg {
				t.Errorf("error = %+v, want type %q message %q", apiErr, tt.wantType, tt.wantMsg)
			}
		})
	}
}

func TestClient_Complete_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := New(Config{BaseURL: url})
	_, err := c.Complete(context.Background(), &provider.Request{Model: "m"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeServerError {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}

func TestExtractContentString(t *testing.T) {
	parts := []any{
		map[string]any{"type": "text", "text": "a"},
		map[string]any{"type": "image_url"},
		map[string]any{"type": "text", "text": "b"},
	}
	if got := ExtractContentString(parts); got != "ab" {
		t.Errorf("parts = %q", got)
	}
	if got := ExtractContentString(nil); got != "" {
		t.Errorf("nil = %q", got)
	}
}
