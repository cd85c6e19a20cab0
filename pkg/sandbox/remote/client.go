package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrAtCapacity is returned when the sandbox server rejects a request with 429.
var ErrAtCapacity = errors.New("sandbox at capacity")

// Client calls the sandbox server's REST API.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a client whose overall timeout is execTimeout plus a
// margin for transfer. The execution limit itself is enforced by the server.
func NewClient(execTimeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: execTimeout + 30*time.Second}}
}

// Execute posts req to sandboxURL and decodes the result.
func (c *Client) Execute(ctx context.Context, sandboxURL string, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(sandboxURL, "/")+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrAtCapacity
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
