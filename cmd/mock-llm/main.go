// Command mock-llm runs a deterministic Chat Completions server that plays
// every pipeline agent. It recognizes the agent from the system prompt and
// answers the way a well-behaved model would, so the whole pipeline can run
// offline against real wrapper files and a real sandbox.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
//
// Use it with llm.provider: openai and llm.base_url: http://localhost:9090.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/extract"
	"github.com/rhuss/finquery/pkg/registry"
	"github.com/rhuss/finquery/pkg/selection"
)

func main() {
	debug.Init(debug.Options{})
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock llm starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock llm failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock llm shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Wire types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	var system string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			break
		}
	}
	text := reply(system)
	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(system) / 4,
			CompletionTokens: len(text) / 4,
			TotalTokens:      (len(system) + len(text)) / 4,
		},
	})
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "finquery-mock"},
		},
	})
}

// --- Agents ---

// reply answers as the agent whose prompt system is.
func reply(system string) string {
	switch {
	case strings.HasPrefix(system, "You are a tool discovery agent"):
		return discoveryReply(system)
	case strings.HasPrefix(system, "You are a tool selection agent"):
		return selectionReply(system)
	case strings.HasPrefix(system, "You are a tool explorer agent"):
		return explorerReply(system)
	case strings.HasPrefix(system, "You are a tool reader agent"):
		return readerReply(system)
	case strings.HasPrefix(system, "You are a code generation agent"):
		return coderReply(system)
	case strings.HasPrefix(system, "You are a response formatting agent"):
		return parserReply(system)
	}
	return "I am a mock model and only understand finquery agent prompts."
}

// discoveryReply returns the listing script the prompt suggests.
func discoveryReply(system string) string {
	code, ok := extract.FirstCodeBlock(system)
	if !ok {
		return "No listing script found."
	}
	return "```python\n" + code + "\n```"
}

func selectionReply(system string) string {
	query := field(system, "User query:")
	tools := extract.ToolBullets(system)
	d := selection.Resolve(query, tools, "")
	if d.Tool == "" {
		return "None of the available tools match this query."
	}
	return fmt.Sprintf("The query asks for %s data.\n%s %s", strings.ToLower(d.Tool), extract.SelectedToolLabel, d.Tool)
}

// explorerReply lists the tools dir itself, since the mock cannot see the
// listing output, and names a tool matching the query's wording.
func explorerReply(system string) string {
	query := field(system, "User query:")
	var tools []string
	for _, s := range selection.DefaultSynonyms {
		tools = append(tools, s.Tool)
	}
	d := selection.Resolve(query, tools, "")
	if d.Tool == "" {
		return "None of the known tools match this query."
	}
	return fmt.Sprintf("Selecting by keyword.\n%s %s", extract.SelectedToolLabel, d.Tool)
}

func readerReply(system string) string {
	src, ok := fenced(system, "Source of ")
	if !ok {
		return "The source was not included."
	}
	d, err := registry.ParseWrapper([]byte(src))
	if err != nil {
		return "Could not read the tool interface: " + err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TOOL: %s\nDESCRIPTION: %s\nPARAMETERS:\n", d.Name, d.Description)
	for _, p := range d.Params {
		req := "OPTIONAL"
		if p.Required {
			req = "REQUIRED"
		}
		fmt.Fprintf(&b, "  - %s (%s): %s\n", p.Name, req, p.Description)
	}
	fmt.Fprintf(&b, "\nEXAMPLE_CALL: %s(%s)\n", d.Name, pyDict(params(d.Params, "")))
	return b.String()
}

var interfaceParamRe = regexp.MustCompile(`^\s*-\s+([A-Za-z_][A-Za-z0-9_]*)\s+\((REQUIRED|OPTIONAL)\)`)

func coderReply(system string) string {
	query := field(system, "User query:")
	tool := field(system, "Tool:")
	importPath := "servers.alphavantage"
	if m := regexp.MustCompile(`Imports \S+ from (\S+)`).FindStringSubmatch(system); m != nil {
		importPath = m[1]
	}

	var ps []registry.Param
	for _, line := range strings.Split(system, "\n") {
		if m := interfaceParamRe.FindStringSubmatch(line); m != nil {
			ps = append(ps, registry.Param{Name: m[1], Required: m[2] == "REQUIRED"})
		}
	}

	return fmt.Sprintf("```python\nimport json\nimport sys\n\nfrom %s import %s\n\n"+
		"result = %s(%s)\n\n"+
		"if isinstance(result, dict) and \"error\" in result:\n"+
		"    print(result[\"error\"], file=sys.stderr)\n"+
		"    sys.exit(1)\n\n"+
		"print(json.dumps(result, indent=2))\n```",
		importPath, tool, tool, pyDict(params(ps, query)))
}

func parserReply(system string) string {
	query := field(system, "User query:")
	tool := field(system, "Tool used:")
	out, _ := fenced(system, "Tool output:")

	if strings.Contains(system, "Tool call FAILED.") {
		return fmt.Sprintf("I could not get data for %q because the %s call failed. Please check the symbol and try again.", query, tool)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return fmt.Sprintf("%s returned: %s", tool, debug.Truncate(strings.TrimSpace(out), 300))
	}
	if q, ok := data["Global Quote"].(map[string]any); ok {
		return fmt.Sprintf("%v is trading at $%v as of %v.", q["01. symbol"], q["05. price"], q["07. latest trading day"])
	}
	if name, ok := data["Name"].(string); ok {
		return fmt.Sprintf("%s (%v) has a market capitalization of %v %v.", name, data["Symbol"], data["MarketCapitalization"], data["Currency"])
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s returned data with the fields: %s.", tool, strings.Join(keys, ", "))
}

// --- Helpers ---

// field returns the rest of the first line that starts with label.
func field(text, label string) string {
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), label); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// fenced returns the body of the first ``` block after the line holding
// marker.
func fenced(text, marker string) (string, bool) {
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	rest := text[i:]
	start := strings.Index(rest, "```\n")
	if start < 0 {
		return "", false
	}
	rest = rest[start+4:]
	end := strings.Index(rest, "\n```")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// companies maps names that appear in questions to tickers.
var companies = map[string]string{
	"apple":     "AAPL",
	"tesla":     "TSLA",
	"nvidia":    "NVDA",
	"microsoft": "MSFT",
	"ibm":       "IBM",
	"amazon":    "AMZN",
	"google":    "GOOGL",
	"alphabet":  "GOOGL",
}

var tickerRe = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// ticker guesses the symbol a question is about. Default: IBM.
func ticker(query string) string {
	for _, tok := range selection.Tokenize(query) {
		if t, ok := companies[strings.TrimSuffix(tok, "s")]; ok {
			return t
		}
	}
	if m := tickerRe.FindString(query); m != "" {
		return m
	}
	return "IBM"
}

// params fills required params and the well-known optional ones.
func params(ps []registry.Param, query string) map[string]string {
	out := map[string]string{}
	for _, p := range ps {
		switch p.Name {
		case "symbol", "tickers":
			out[p.Name] = ticker(query)
		case "keywords":
			out[p.Name] = strings.ToLower(ticker(query))
		case "outputsize":
			out[p.Name] = "compact"
		default:
			if p.Required {
				out[p.Name] = "value"
			}
		}
	}
	return out
}

func pyDict(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q: %q", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
