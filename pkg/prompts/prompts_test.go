package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rhuss/finquery/pkg/extract"
)

func TestDefault_RendersAllStages(t *testing.T) {
	s := Default()

	discovery, err := s.Discovery(DiscoveryData{ToolsDir: "./servers/alphavantage"})
	if err != nil {
		t.Fatal(err)
	}
	// The discovery prompt carries the listing code the agent echoes back.
	code, ok := extract.FirstCodeBlock(discovery)
	if !ok || !strings.Contains(code, "'./servers/alphavantage'") {
		t.Errorf("discovery code block = %q", code)
	}

	selection, err := s.Selection(SelectionData{
		Query: "IBM earnings call transcript",
		Tools: []string{"EARNINGS", "EARNINGS_CALL_TRANSCRIPT"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"IBM earnings call transcript", "  - EARNINGS\n", "  - EARNINGS_CALL_TRANSCRIPT\n", "(2 total)", "SELECTED_TOOL:"} {
		if !strings.Contains(selection, want) {
			t.Errorf("selection prompt missing %q", want)
		}
	}

	reader, err := s.Reader(ReaderData{Tool: "GLOBAL_QUOTE", ToolsDir: "./servers/alphavantage", Source: "def GLOBAL_QUOTE(args): ..."})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reader, "def GLOBAL_QUOTE(args): ...") || !strings.Contains(reader, "TOOL: GLOBAL_QUOTE") {
		t.Errorf("reader prompt = %q", reader)
	}

	coder, err := s.Coder(CoderData{Query: "price of TSLA", Tool: "GLOBAL_QUOTE", Interface: "TOOL: GLOBAL_QUOTE", ImportPath: "servers.alphavantage"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(coder, "from servers.alphavantage import GLOBAL_QUOTE") {
		t.Errorf("coder prompt missing import line")
	}

	explorer, err := s.Explorer(ExplorerData{Query: "quote for MSFT", ToolsDir: "./tools"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(explorer, `"quote for MSFT"`) || !strings.Contains(explorer, "'./tools'") {
		t.Errorf("explorer prompt = %q", explorer)
	}
}

func TestParser_FailureGuidance(t *testing.T) {
	s := Default()

	ok, err := s.Parser(ParserData{Query: "q", Tool: "GLOBAL_QUOTE", Succeeded: true, Output: `{"price": "1.00"}`})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(ok, "The tool call failed") {
		t.Error("success prompt should not include failure guidance")
	}

	failed, err := s.Parser(ParserData{Query: "q", Tool: "GLOBAL_QUOTE", Succeeded: false, Output: "rate limit exceeded"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(failed, "rate limit exceeded") || !strings.Contains(failed, "The tool call failed") {
		t.Errorf("failure prompt = %q", failed)
	}
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "parser.tmpl"), []byte("Answer {{.Query}} from {{.Tool}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := s.Parser(ParserData{Query: "q1", Tool: "T"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Answer q1 from T" {
		t.Errorf("override = %q", got)
	}

	// Templates without an override keep the built-in text.
	sel, err := s.Selection(SelectionData{Query: "q", Tools: []string{"A"}})
	if err != nil || !strings.Contains(sel, "SELECTED_TOOL:") {
		t.Errorf("selection = %q, %v", sel, err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing dir")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "coder.tmpl"), []byte("{{.Query"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}

	s, err := Load("")
	if err != nil || s == nil {
		t.Fatalf("Load(\"\") = %v, %v", s, err)
	}
}

func TestRender_Errors(t *testing.T) {
	s := Default()
	if _, err := s.Render("nope", nil); err == nil {
		t.Error("expected unknown template error")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "discovery.tmpl"), []byte("{{.Missing}}"), 0o644)
	s, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Discovery(DiscoveryData{ToolsDir: "x"}); err == nil {
		t.Error("expected error for unknown field")
	}
}
