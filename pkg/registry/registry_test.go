package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const generatedWrapper = `
from servers.mcp_client import call_mcp_tool


def EARNINGS_CALL_TRANSCRIPT(params: dict = None) -> dict:
    """
    Returns the earnings call transcript for a given company in a specific quarter.

    Args:
        params (dict, optional): Dictionary containing the following parameters:
            symbol (required, string): Ticker symbol. Example: IBM
            quarter (required, string): Fiscal quarter in YYYYQM format. Example: 2024Q1
            datatype (optional, string): json or csv

    Returns:
        dict: API response containing the requested data or error information
    """
    if params is None:
        params = {}
    return call_mcp_tool("EARNINGS_CALL_TRANSCRIPT", params)
`

const upstreamWrapper = `
from servers.mcp_client import call_mcp_tool


def GLOBAL_QUOTE(params: dict = None) -> dict:
    """
    
Returns the latest price and volume information for a ticker.

Args:
    symbol: The symbol of the global ticker. For example: symbol=IBM
    datatype: By default, datatype=csv. Strings json and csv are accepted:
             json returns the data in JSON format.


        entitlement: "delayed" for 15-minute delayed data
Returns:
    Dict or string containing the latest quote information.

    
    Args:
        params: Dictionary containing the tool parameters (default: empty dict)
    """
    if params is None:
        params = {}
    return call_mcp_tool("GLOBAL_QUOTE", params)
`

const noParamWrapper = `
def PING(params: dict = None) -> dict:
    """
    Check if the service is healthy.

    Args:
        params (dict, optional): Dictionary containing the following parameters:
            No parameters required

    Returns:
        dict: API response containing the requested data or error information
    """
    return call_mcp_tool("PING", params or {})
`

func TestParseWrapper_Generated(t *testing.T) {
	d, err := ParseWrapper([]byte(generatedWrapper))
	if err != nil {
		t.Fatalf("ParseWrapper: %v", err)
	}
	if d.Name != "EARNINGS_CALL_TRANSCRIPT" {
		t.Errorf("name = %q", d.Name)
	}
	if !strings.HasPrefix(d.Description, "Returns the earnings call transcript") {
		t.Errorf("description = %q", d.Description)
	}
	want := []Param{
		{Name: "symbol", Type: "string", Required: true, Description: "Ticker symbol. Example: IBM"},
		{Name: "quarter", Type: "string", Required: true, Description: "Fiscal quarter in YYYYQM format. Example: 2024Q1"},
		{Name: "datatype", Type: "string", Description: "json or csv"},
	}
	if !slices.Equal(d.Params, want) {
		t.Errorf("params = %+v\nwant %+v", d.Params, want)
	}
	if got := d.Required(); !slices.Equal(got, []string{"symbol", "quarter"}) {
		t.Errorf("Required() = %v", got)
	}
}

func TestParseWrapper_Upstream(t *testing.T) {
	d, err := ParseWrapper([]byte(upstreamWrapper))
	if err != nil {
		t.Fatalf("ParseWrapper: %v", err)
	}
	if d.Description != "Returns the latest price and volume information for a ticker." {
		t.Errorf("description = %q", d.Description)
	}
	var names []string
	for _, p := range d.Params {
		names = append(names, p.Name)
		if p.Required {
			t.Errorf("param %s should not be required", p.Name)
		}
	}
	if !slices.Equal(names, []string{"symbol", "datatype", "entitlement"}) {
		t.Errorf("params = %v", names)
	}
	if !strings.Contains(d.Params[1].Description, "json returns the data") {
		t.Errorf("continuation line not joined: %q", d.Params[1].Description)
	}
}

func TestParseWrapper_NoParams(t *testing.T) {
	d, err := ParseWrapper([]byte(noParamWrapper))
	if err != nil {
		t.Fatalf("ParseWrapper: %v", err)
	}
	if d.Name != "PING" || len(d.Params) != 0 {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestParseWrapper_NotWrapper(t *testing.T) {
	_, err := ParseWrapper([]byte("import json\nprint(1)\n"))
	if !errors.Is(err, ErrNotWrapper) {
		t.Errorf("err = %v, want ErrNotWrapper", err)
	}
}

func TestValidate(t *testing.T) {
	d, _ := ParseWrapper([]byte(generatedWrapper))
	r, err := New(d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr error
	}{
		{"valid", "EARNINGS_CALL_TRANSCRIPT", map[string]any{"symbol": "IBM", "quarter": "2024Q1"}, nil},
		{"extra args allowed", "EARNINGS_CALL_TRANSCRIPT", map[string]any{"symbol": "IBM", "quarter": "2024Q1", "apikey": "x"}, nil},
		{"missing required", "EARNINGS_CALL_TRANSCRIPT", map[string]any{"symbol": "IBM"}, ErrInvalidArguments},
		{"wrong type", "EARNINGS_CALL_TRANSCRIPT", map[string]any{"symbol": 42, "quarter": "2024Q1"}, ErrInvalidArguments},
		{"nil args", "EARNINGS_CALL_TRANSCRIPT", nil, ErrInvalidArguments},
		{"unknown tool", "NOPE", nil, ErrUnknownTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.tool, tt.args)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MessageNamesProperty(t *testing.T) {
	d, _ := ParseWrapper([]byte(generatedWrapper))
	r, _ := New(d)
	err := r.Validate("EARNINGS_CALL_TRANSCRIPT", map[string]any{"symbol": "IBM"})
	if err == nil || !strings.Contains(err.Error(), "quarter") {
		t.Errorf("err = %v, want mention of quarter", err)
	}
}

func TestNew_Duplicate(t *testing.T) {
	if _, err := New(Descriptor{Name: "A"}, Descriptor{Name: "A"}); err == nil {
		t.Error("expected duplicate error")
	}
	if _, err := New(Descriptor{}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	if r.Len() != 0 || r.Names() != nil {
		t.Error("nil registry should be empty")
	}
	if _, ok := r.Get("X"); ok {
		t.Error("nil registry Get should miss")
	}
	if err := r.Validate("X", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("alphavantage/EARNINGS_CALL_TRANSCRIPT.py", generatedWrapper)
	write("alphavantage/GLOBAL_QUOTE.py", upstreamWrapper)
	write("alphavantage/__init__.py", "from .PING import PING\n")
	write("mcp_client.py", "def call_mcp_tool(name, params):\n    pass\n")
	write("alphavantage/README.md", "# tools\n")
	write("alphavantage/notes.py", "X = 1\n")

	r, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if got := r.Names(); !slices.Equal(got, []string{"EARNINGS_CALL_TRANSCRIPT", "GLOBAL_QUOTE"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestFromMCPTools(t *testing.T) {
	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "av", Version: "1.0.0"}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "GLOBAL_QUOTE",
		Description: "Latest price",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol":   map[string]any{"type": "string", "description": "Ticker"},
				"datatype": map[string]any{"type": "string"},
			},
			"required": []any{"symbol"},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go server.Run(ctx, serverTransport)

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Close()

	var tools []*mcp.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			t.Fatal(err)
		}
		tools = append(tools, tool)
	}

	r, err := FromMCPTools(tools)
	if err != nil {
		t.Fatalf("FromMCPTools: %v", err)
	}
	d, ok := r.Get("GLOBAL_QUOTE")
	if !ok {
		t.Fatal("GLOBAL_QUOTE missing")
	}
	want := []Param{
		{Name: "datatype", Type: "string"},
		{Name: "symbol", Type: "string", Required: true, Description: "Ticker"},
	}
	if !slices.Equal(d.Params, want) {
		t.Errorf("params = %+v", d.Params)
	}
	if err := r.Validate("GLOBAL_QUOTE", map[string]any{}); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("Validate without symbol: %v", err)
	}
}
