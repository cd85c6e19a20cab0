// Package anthropic adapts the Anthropic Messages API to the provider
// interface.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/provider"
)

const (
	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultModel is used when neither the request nor the config names one.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxTokens caps each response.
	DefaultMaxTokens = 4096

	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"
)

// Config holds the settings for the Anthropic backend.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Provider talks to the Messages API.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
}

var _ provider.Provider = (*Provider)(nil)

// New creates an Anthropic provider. An API key is required.
func New(cfg Config) (*Provider, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		apiKey:     key,
		model:      model,
		maxTokens:  maxTokens,
	}, nil
}

// Name returns "anthropic".
func (p *Provider) Name() string {
	return "anthropic"
}

// messagesRequest is the body of POST /v1/messages.
type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []messageContent `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
}

type messageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the non-streaming reply.
type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one Messages API request.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
	}
	if body.Model == "" {
		body.Model = p.model
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = p.maxTokens
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, messageContent{Role: m.Role, Content: m.Content})
	}
	if len(body.Messages) == 0 {
		return nil, api.NewInvalidRequestError("messages", "at least one message is required")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := p.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	debug.Log("providers", "request", "method", "POST", "url", url, "model", body.Model, "body_bytes", len(data))
	debug.Raw("providers", string(data))

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, provider.MapNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, provider.MapStatus(httpResp.StatusCode, errorMessage(raw))
	}

	var msg messagesResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	resp := &provider.Response{
		Model:      msg.Model,
		StopReason: msg.StopReason,
		Usage: provider.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		resp.Parts = append(resp.Parts, provider.Part{Type: block.Type, Text: block.Text})
	}

	debug.Log("providers", "response",
		"model", msg.Model,
		"stop_reason", msg.StopReason,
		"blocks", len(msg.Content),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)
	observability.ProviderTokensTotal.WithLabelValues(p.Name(), msg.Model, "input").Add(float64(msg.Usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(p.Name(), msg.Model, "output").Add(float64(msg.Usage.OutputTokens))

	return resp, nil
}

// Close releases client resources.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func errorMessage(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return ""
}
