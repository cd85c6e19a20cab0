package toolgen

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/finquery/pkg/registry"
)

var sampleTools = []registry.Descriptor{
	{
		Name:        "TIME_SERIES_DAILY",
		Description: "Returns daily time series of the equity specified.",
		Params: []registry.Param{
			{Name: "symbol", Type: "string", Required: true, Description: "The name of the equity.\n For example: symbol=IBM"},
			{Name: "outputsize", Type: "string", Description: "compact or full"},
		},
	},
	{Name: "PING", Description: "Check if the service is healthy."},
	{Name: "FX_DAILY", Description: "Daily FX rates."},
	{Name: "SMA", Description: "Simple moving average."},
	{Name: "GLOBAL_QUOTE", Description: "Latest price."},
}

func TestGenerate(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "servers", "alphavantage")

	rep, err := Generate(sampleTools, Options{OutDir: out})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	wantTools := []string{"FX_DAILY", "GLOBAL_QUOTE", "PING", "SMA", "TIME_SERIES_DAILY"}
	if !slices.Equal(rep.Tools, wantTools) {
		t.Errorf("tools = %v", rep.Tools)
	}
	if len(rep.Files) != len(wantTools)+3 {
		t.Errorf("files = %v", rep.Files)
	}

	wrapper := readFile(t, filepath.Join(out, "TIME_SERIES_DAILY.py"))
	for _, want := range []string{
		"from servers.mcp_client import call_mcp_tool",
		"def TIME_SERIES_DAILY(params: dict = None) -> dict:",
		"            symbol (required, string): The name of the equity. For example: symbol=IBM\n",
		"            outputsize (optional, string): compact or full\n",
		`return call_mcp_tool("TIME_SERIES_DAILY", params)`,
	} {
		if !strings.Contains(wrapper, want) {
			t.Errorf("wrapper missing %q:\n%s", want, wrapper)
		}
	}

	ping := readFile(t, filepath.Join(out, "PING.py"))
	if !strings.Contains(ping, "            No parameters required\n") {
		t.Errorf("PING wrapper:\n%s", ping)
	}

	index := readFile(t, filepath.Join(out, "__init__.py"))
	if !strings.Contains(index, "from .GLOBAL_QUOTE import GLOBAL_QUOTE\n") || !strings.Contains(index, `    "SMA",`) {
		t.Errorf("__init__.py:\n%s", index)
	}

	client := readFile(t, filepath.Join(root, "servers", "mcp_client.py"))
	if !strings.Contains(client, `os.environ.get("FINQUERY_TOOL_GATEWAY", "")`) ||
		!strings.Contains(client, `"FINQUERY_TOOL_TIMEOUT", "60"`) {
		t.Errorf("mcp_client.py does not read the gateway env:\n%s", client)
	}
}

func TestGenerate_ParsesBack(t *testing.T) {
	out := filepath.Join(t.TempDir(), "servers", "alphavantage")
	if _, err := Generate(sampleTools, Options{OutDir: out}); err != nil {
		t.Fatal(err)
	}

	reg, err := registry.LoadDir(out)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if reg.Len() != len(sampleTools) {
		t.Errorf("registry holds %d tools, want %d", reg.Len(), len(sampleTools))
	}
	d, ok := reg.Get("TIME_SERIES_DAILY")
	if !ok {
		t.Fatal("TIME_SERIES_DAILY missing")
	}
	if d.Description != "Returns daily time series of the equity specified." {
		t.Errorf("description = %q", d.Description)
	}
	if got := d.Required(); !slices.Equal(got, []string{"symbol"}) {
		t.Errorf("required = %v", got)
	}
}

func TestReadme(t *testing.T) {
	readme, err := Readme(sampleTools, "alphavantage", "Alpha Vantage MCP Tools")
	if err != nil {
		t.Fatal(err)
	}
	s := string(readme)
	if !strings.Contains(s, "## Available Tools (5 total)") {
		t.Errorf("missing count:\n%s", s)
	}

	// Categories sorted by name, tools sorted within each.
	order := []string{
		"### Core Stock APIs",
		"- **GLOBAL_QUOTE**: Latest price.",
		"- **TIME_SERIES_DAILY**:",
		"### Forex",
		"- **FX_DAILY**:",
		"### Other",
		"- **PING**:",
		"### Technical Indicators",
		"- **SMA**:",
	}
	last := -1
	for _, want := range order {
		i := strings.Index(s, want)
		if i < 0 {
			t.Fatalf("README missing %q:\n%s", want, s)
		}
		if i < last {
			t.Errorf("%q out of order", want)
		}
		last = i
	}
}

func TestWrapper_EscapesDocstring(t *testing.T) {
	src, err := Wrapper(registry.Descriptor{Name: "X", Description: `ends with """ here`}, "servers.mcp_client")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(src), `"""`) != 2 {
		t.Errorf("docstring broken:\n%s", src)
	}
}

func TestGenerate_InvalidName(t *testing.T) {
	_, err := Generate([]registry.Descriptor{{Name: "../evil"}}, Options{OutDir: t.TempDir()})
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("err = %v, want ErrInvalidName", err)
	}
	if _, err := Generate(nil, Options{}); err == nil {
		t.Error("expected error without output dir")
	}
}

func TestClient_Timeout(t *testing.T) {
	src, err := Client(90 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(src), `"FINQUERY_TOOL_TIMEOUT", "90"`) {
		t.Errorf("timeout not rendered:\n%s", src)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
