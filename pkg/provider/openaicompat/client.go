package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/provider"
)

// Config holds the settings for an OpenAI-compatible backend.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client performs requests against an OpenAI-compatible Chat Completions
// backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ provider.Provider = (*Client)(nil)

// New creates a new Client. BaseURL is required; the /v1 suffix is added
// per request.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("openaicompat: base URL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}, nil
}

// Name returns "openai".
func (c *Client) Name() string {
	return "openai"
}

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	if reqCopy.Model == "" {
		reqCopy.Model = c.model
	}

	chatReq := TranslateToChat(&reqCopy)

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("providers", "request", "method", "POST", "url", url, "model", chatReq.Model, "body_bytes", len(body))
	debug.Raw("providers", string(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	resp := TranslateResponse(&chatResp)
	observability.ProviderTokensTotal.WithLabelValues(c.Name(), resp.Model, "input").Add(float64(resp.Usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(c.Name(), resp.Model, "output").Add(float64(resp.Usage.OutputTokens))

	return resp, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
