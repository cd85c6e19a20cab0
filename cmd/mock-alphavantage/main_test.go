package main

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/finquery/pkg/registry"
	"github.com/rhuss/finquery/pkg/toolclient"
)

func newClient(t *testing.T) *toolclient.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	server := newServer()
	c := toolclient.NewWithTransport(toolclient.Config{Name: "mock"}, func() (mcp.Transport, error) {
		st, ct := mcp.NewInMemoryTransports()
		go server.Run(ctx, st)
		return ct, nil
	})
	t.Cleanup(func() {
		c.Close()
		cancel()
	})
	return c
}

func TestCatalog(t *testing.T) {
	c := newClient(t)
	tools, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	reg, err := registry.FromMCPTools(tools)
	if err != nil {
		t.Fatalf("FromMCPTools: %v", err)
	}
	for _, name := range []string{"GLOBAL_QUOTE", "TIME_SERIES_DAILY", "COMPANY_OVERVIEW", "SYMBOL_SEARCH", "NEWS_SENTIMENT"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("%s not listed", name)
		}
	}
	quote, _ := reg.Get("GLOBAL_QUOTE")
	if req := quote.Required(); len(req) != 1 || req[0] != "symbol" {
		t.Errorf("GLOBAL_QUOTE required = %v", req)
	}
}

func TestGlobalQuoteIsDeterministic(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	first := c.CallTool(ctx, "GLOBAL_QUOTE", map[string]any{"symbol": "tsla"})
	second := c.CallTool(ctx, "GLOBAL_QUOTE", map[string]any{"symbol": "TSLA"})

	q, ok := first.(map[string]any)["Global Quote"].(map[string]any)
	if !ok {
		t.Fatalf("result = %#v", first)
	}
	if q["01. symbol"] != "TSLA" {
		t.Errorf("symbol = %v", q["01. symbol"])
	}
	q2 := second.(map[string]any)["Global Quote"].(map[string]any)
	if q["05. price"] != q2["05. price"] {
		t.Errorf("prices differ: %v vs %v", q["05. price"], q2["05. price"])
	}
}

func TestTimeSeriesSize(t *testing.T) {
	c := newClient(t)
	got := c.CallTool(context.Background(), "TIME_SERIES_DAILY", map[string]any{"symbol": "NVDA"})
	series, ok := got.(map[string]any)["Time Series (Daily)"].(map[string]any)
	if !ok || len(series) != 100 {
		t.Errorf("series points = %d", len(series))
	}
}

func TestSymbolSearch(t *testing.T) {
	c := newClient(t)
	got := c.CallTool(context.Background(), "SYMBOL_SEARCH", map[string]any{"keywords": "apple"})
	matches, ok := got.(map[string]any)["bestMatches"].([]any)
	if !ok || len(matches) != 1 {
		t.Fatalf("matches = %#v", got)
	}
	if m := matches[0].(map[string]any); m["1. symbol"] != "AAPL" {
		t.Errorf("match = %v", m)
	}
}

func TestBasePriceRange(t *testing.T) {
	for _, sym := range []string{"A", "IBM", "TSLA", "ZZZZZZ"} {
		if p := basePrice(sym); p < 20 || p >= 520 {
			t.Errorf("basePrice(%q) = %v", sym, p)
		}
	}
}
