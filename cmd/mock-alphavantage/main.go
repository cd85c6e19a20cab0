// Command mock-alphavantage runs an MCP server that answers a handful of
// Alpha Vantage tools with deterministic fixture data. It lets the pipeline
// run end to end without an API key or network access.
//
// Configuration:
//
//	PORT              - Listen port for streamable HTTP (default: 8080)
//	MOCK_AV_TRANSPORT - "http" (default) serves /mcp, "stdio" serves stdin/stdout
//
// Point finquery at it with mcp.transport: streamable-http and
// mcp.url: http://localhost:8080/mcp, or mcp.command: mock-alphavantage with
// MOCK_AV_TRANSPORT=stdio in mcp.env.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/finquery/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mock server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	debug.Init(debug.Options{})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := newServer()
	if os.Getenv("MOCK_AV_TRANSPORT") == "stdio" {
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("mock Alpha Vantage MCP server starting", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type symbolInput struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol, e.g. IBM"`
}

type seriesInput struct {
	Symbol     string `json:"symbol" jsonschema:"ticker symbol, e.g. IBM"`
	OutputSize string `json:"outputsize,omitempty" jsonschema:"compact (latest 100 points) or full"`
}

type searchInput struct {
	Keywords string `json:"keywords" jsonschema:"company name or partial ticker"`
}

type newsInput struct {
	Tickers string `json:"tickers,omitempty" jsonschema:"comma separated tickers"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of articles"`
}

// listings backs SYMBOL_SEARCH and COMPANY_OVERVIEW.
var listings = map[string]string{
	"AAPL": "Apple Inc",
	"IBM":  "International Business Machines",
	"MSFT": "Microsoft Corporation",
	"NVDA": "NVIDIA Corporation",
	"TSLA": "Tesla Inc",
}

// fixtureDate anchors all generated series so output never changes.
var fixtureDate = time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)

func newServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "mock-alphavantage", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "GLOBAL_QUOTE",
		Description: "Returns the latest price and volume information for a ticker.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in symbolInput) (*mcp.CallToolResult, any, error) {
		sym := strings.ToUpper(in.Symbol)
		price := basePrice(sym)
		return jsonResult(map[string]any{
			"Global Quote": map[string]string{
				"01. symbol":             sym,
				"02. open":               money(price * 0.99),
				"03. high":               money(price * 1.01),
				"04. low":                money(price * 0.98),
				"05. price":              money(price),
				"06. volume":             fmt.Sprint(1_000_000 + int(price)*1000),
				"07. latest trading day": fixtureDate.Format(time.DateOnly),
				"08. previous close":     money(price * 0.995),
				"09. change":             money(price * 0.005),
				"10. change percent":     "0.5025%",
			},
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "TIME_SERIES_DAILY",
		Description: "Returns daily open, high, low, close and volume for a ticker.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, any, error) {
		sym := strings.ToUpper(in.Symbol)
		days := 100
		if in.OutputSize == "full" {
			days = 365
		}
		price := basePrice(sym)
		series := make(map[string]map[string]string, days)
		for i := 0; i < days; i++ {
			p := price * (1 - float64(i%7)*0.004)
			series[fixtureDate.AddDate(0, 0, -i).Format(time.DateOnly)] = map[string]string{
				"1. open":   money(p * 0.99),
				"2. high":   money(p * 1.01),
				"3. low":    money(p * 0.98),
				"4. close":  money(p),
				"5. volume": fmt.Sprint(900_000 + i*1000),
			}
		}
		return jsonResult(map[string]any{
			"Meta Data": map[string]string{
				"1. Information":    "Daily Prices (open, high, low, close) and Volumes",
				"2. Symbol":         sym,
				"3. Last Refreshed": fixtureDate.Format(time.DateOnly),
			},
			"Time Series (Daily)": series,
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "COMPANY_OVERVIEW",
		Description: "Returns company information, financial ratios and key metrics.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in symbolInput) (*mcp.CallToolResult, any, error) {
		sym := strings.ToUpper(in.Symbol)
		name, ok := listings[sym]
		if !ok {
			return jsonResult(map[string]any{})
		}
		price := basePrice(sym)
		return jsonResult(map[string]string{
			"Symbol":               sym,
			"Name":                 name,
			"Exchange":             "NASDAQ",
			"Currency":             "USD",
			"MarketCapitalization": fmt.Sprint(int64(price * 1e9)),
			"PERatio":              money(price / 7),
			"52WeekHigh":           money(price * 1.2),
			"52WeekLow":            money(price * 0.7),
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "SYMBOL_SEARCH",
		Description: "Returns the best-matching symbols for a keyword.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
		kw := strings.ToLower(in.Keywords)
		matches := []map[string]string{}
		for sym, name := range listings {
			if strings.Contains(strings.ToLower(sym), kw) || strings.Contains(strings.ToLower(name), kw) {
				matches = append(matches, map[string]string{"1. symbol": sym, "2. name": name, "8. currency": "USD"})
			}
		}
		return jsonResult(map[string]any{"bestMatches": matches})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "NEWS_SENTIMENT",
		Description: "Returns recent news articles and their sentiment scores.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in newsInput) (*mcp.CallToolResult, any, error) {
		limit := in.Limit
		if limit <= 0 || limit > 5 {
			limit = 5
		}
		feed := make([]map[string]any, 0, limit)
		for i := 0; i < limit; i++ {
			feed = append(feed, map[string]any{
				"title":                   fmt.Sprintf("Market update %d for %s", i+1, orDefault(in.Tickers, "the market")),
				"time_published":          fixtureDate.Add(-time.Duration(i) * time.Hour).Format("20060102T150405"),
				"overall_sentiment_score": 0.15,
				"overall_sentiment_label": "Somewhat-Bullish",
			})
		}
		return jsonResult(map[string]any{"items": fmt.Sprint(limit), "feed": feed})
	})

	return server
}

// basePrice derives a stable price between 20 and 520 from the symbol.
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 20 + float64(h.Sum32()%50000)/100
}

func money(v float64) string { return fmt.Sprintf("%.4f", v) }

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil, nil
}
