// Package toolclient talks to the MCP server that provides the financial
// data tools.
//
// CallTool follows the contract the generated wrappers rely on: it never
// fails with a Go error. Transport problems, protocol errors and tool
// errors all come back as an error envelope
//
//	{"error": "...", "tool": "NAME", "arguments": {...}}
//
// so the sandboxed code can print them and the parser stage can explain
// the failure to the user.
package toolclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/finquery/pkg/debug"
)

// Client holds one MCP session, connected lazily and re-established after
// a transport failure. It is safe for concurrent use.
type Client struct {
	cfg Config

	// transport overrides createTransport, for tests.
	transport func() (mcp.Transport, error)

	mu      sync.Mutex
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// New returns an unconnected client.
func New(cfg Config) *Client {
	c := &Client{cfg: cfg}
	c.transport = c.createTransport
	return c
}

// NewWithTransport returns a client that connects over the transports
// produced by fn.
func NewWithTransport(cfg Config, fn func() (mcp.Transport, error)) *Client {
	return &Client{cfg: cfg, transport: fn}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.name() }

// Connect establishes the session if it is not already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.sessionLocked(ctx)
	return err
}

func (c *Client) sessionLocked(ctx context.Context) (*mcp.ClientSession, error) {
	if c.session != nil {
		return c.session, nil
	}
	t, err := c.transport()
	if err != nil {
		return nil, fmt.Errorf("creating transport for %q: %w", c.cfg.name(), err)
	}
	client := mcp.NewClient(
		&mcp.Implementation{Name: "finquery", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)
	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to tool server %q: %w", c.cfg.name(), err)
	}
	debug.Log("mcp", "connected", "server", c.cfg.name(), "transport", c.transportName())
	c.session = session
	return session, nil
}

// dropLocked closes a session that failed so the next call reconnects.
func (c *Client) dropLocked() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		slog.Debug("closing tool session", "server", c.cfg.name(), "error", err)
	}
	c.session = nil
}

func (c *Client) transportName() string {
	if c.cfg.Transport == "" {
		return TransportStdio
	}
	return c.cfg.Transport
}

func (c *Client) createTransport() (mcp.Transport, error) {
	switch c.transportName() {
	case TransportStdio:
		name, args := c.cfg.command()
		cmd := exec.Command(name, args...)
		cmd.Env = append(os.Environ(), c.cfg.Env...)
		return &mcp.CommandTransport{Command: cmd}, nil
	case TransportSSE:
		t := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if hc := c.httpClient(); hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	case TransportStreamableHTTP:
		t := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if hc := c.httpClient(); hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// httpClient returns nil when no headers or auth are configured.
func (c *Client) httpClient() *http.Client {
	var tokens TokenSource
	if c.cfg.Auth.Type == "oauth_client_credentials" {
		tokens = NewClientCredentials(c.cfg.Auth)
	}
	if len(c.cfg.Headers) == 0 && tokens == nil {
		return nil
	}
	return &http.Client{Transport: &headerTransport{
		base:    http.DefaultTransport,
		headers: c.cfg.Headers,
		tokens:  tokens,
	}}
}

// ListTools returns the server's tools. The first successful listing is
// cached for the life of the client.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tools != nil {
		return c.tools, nil
	}
	session, err := c.sessionLocked(ctx)
	if err != nil {
		return nil, err
	}

	var tools []*mcp.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.name(), err)
		}
		tools = append(tools, tool)
	}
	if tools == nil {
		tools = []*mcp.Tool{}
	}
	c.tools = tools
	return tools, nil
}

// ToolNames returns the listed tool names in server order.
func (c *Client) ToolNames(ctx context.Context) ([]string, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// CallTool invokes a tool. The result is the decoded JSON payload, the
// raw text when it is not JSON, a list when the server returned several
// parts, or the error envelope.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) any {
	if args == nil {
		args = map[string]any{}
	}
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.call(ctx, name, args)
	if err != nil {
		slog.Warn("tool call failed", "tool", name, "error", err, "duration", time.Since(start))
		return ErrorEnvelope(err.Error(), name, args)
	}

	texts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	debug.Log("mcp", "tool result", "tool", name, "parts", len(texts), "is_error", result.IsError,
		"duration", time.Since(start))

	if result.IsError {
		msg := strings.Join(texts, "\n")
		if msg == "" {
			msg = "tool reported an error"
		}
		return ErrorEnvelope(msg, name, args)
	}
	return Decode(texts)
}

func (c *Client) call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	session, err := c.sessionLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		c.mu.Lock()
		if c.session == session {
			c.dropLocked()
		}
		c.mu.Unlock()
		return nil, err
	}
	return result, nil
}

// Decode applies the result shaping rules to the text parts of a result.
func Decode(texts []string) any {
	switch len(texts) {
	case 0:
		return []any{}
	case 1:
		var v any
		if err := json.Unmarshal([]byte(texts[0]), &v); err == nil {
			return v
		}
		return texts[0]
	default:
		out := make([]any, len(texts))
		for i, t := range texts {
			out[i] = t
		}
		return out
	}
}

// ErrorEnvelope builds the failure value returned in place of a result.
func ErrorEnvelope(msg, tool string, args map[string]any) map[string]any {
	if args == nil {
		args = map[string]any{}
	}
	return map[string]any{
		"error":     msg,
		"tool":      tool,
		"arguments": args,
	}
}

// Close ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
