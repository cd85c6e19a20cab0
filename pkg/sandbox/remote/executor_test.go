package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/finquery/pkg/sandbox"
)

func writeSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"servers/mcp_client.py":                "def call_tool(): pass\n",
		"servers/alphavantage/GLOBAL_QUOTE.py": "def GLOBAL_QUOTE(symbol): pass\n",
		"servers/alphavantage/README.md":       "# tools\n",
		"servers/alphavantage/sub/__init__.py": "",
		"unrelated.py":                         "print(1)\n",
	} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNewExecutor_ShipsMatchingFiles(t *testing.T) {
	e, err := NewExecutor(StaticAcquirer{URL: "http://unused"}, Config{SourceDir: writeSource(t)})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	want := []string{
		"servers/alphavantage/GLOBAL_QUOTE.py",
		"servers/alphavantage/sub/__init__.py",
		"servers/mcp_client.py",
	}
	if got := e.Files(); !reflect.DeepEqual(got, want) {
		t.Errorf("Files() = %v, want %v", got, want)
	}

	if _, err := NewExecutor(nil, Config{}); err == nil {
		t.Error("expected error for nil acquirer")
	}
}

func TestExecute_SendsRequest(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Response{Status: StatusSuccess, Stdout: "42\n"})
	}))
	defer srv.Close()

	e, err := NewExecutor(StaticAcquirer{URL: srv.URL + "/"}, Config{
		SourceDir: writeSource(t),
		Timeout:   1500 * time.Millisecond,
		Env:       map[string]string{"FINQUERY_TOOL_GATEWAY": "http://gw:9000"},
	})
	if err != nil {
		t.Fatal(err)
	}

	res := e.Execute(context.Background(), "print(42)")
	if !res.Succeeded || res.Stdout != "42\n" {
		t.Errorf("result = %+v", res)
	}
	if got.Code != "print(42)" || got.TimeoutSeconds != 2 {
		t.Errorf("request = %+v", got)
	}
	if got.Env["FINQUERY_TOOL_GATEWAY"] != "http://gw:9000" {
		t.Errorf("env = %v", got.Env)
	}
	content, _ := base64.StdEncoding.DecodeString(got.Files["servers/alphavantage/GLOBAL_QUOTE.py"])
	if !strings.Contains(string(content), "def GLOBAL_QUOTE") {
		t.Errorf("shipped file content = %q", content)
	}
}

func TestExecute_ResultMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        any
		wantSuccess bool
		wantExit    int
		wantStderr  string
	}{
		{"success", 200, Response{Status: StatusSuccess, Stdout: "ok"}, true, 0, ""},
		{"script error", 200, Response{Status: StatusError, Stderr: "Traceback", ExitCode: 1}, false, 1, "Traceback"},
		{"timed out", 200, Response{Status: StatusFailed, Stderr: "Execution timed out after 30 seconds", ExitCode: -1}, false, -1, "Execution timed out after 30 seconds"},
		{"at capacity", 429, map[string]string{"error": "busy"}, false, -1, "sandbox at capacity"},
		{"server error", 500, map[string]string{"error": "disk full"}, false, -1, "HTTP 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			e, _ := NewExecutor(StaticAcquirer{URL: srv.URL}, Config{})
			res := e.Execute(context.Background(), "x")
			if res.Succeeded != tt.wantSuccess || res.ExitCode != tt.wantExit {
				t.Errorf("result = %+v", res)
			}
			if !strings.Contains(res.Stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
		})
	}
}

type failingAcquirer struct{}

func (failingAcquirer) Acquire(context.Context) (string, func(), error) {
	return "", nil, errors.New("no sandbox available")
}

type countingAcquirer struct {
	url      string
	released int
}

func (a *countingAcquirer) Acquire(context.Context) (string, func(), error) {
	return a.url, func() { a.released++ }, nil
}

func TestExecute_AcquireAndRelease(t *testing.T) {
	e, _ := NewExecutor(failingAcquirer{}, Config{})
	res := e.Execute(context.Background(), "x")
	if res.Succeeded || res.ExitCode != sandbox.FailureExitCode || !strings.Contains(res.Stderr, "no sandbox available") {
		t.Errorf("result = %+v", res)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	acq := &countingAcquirer{url: url}
	e, _ = NewExecutor(acq, Config{})
	res = e.Execute(context.Background(), "x")
	if res.Succeeded || !strings.Contains(res.Stderr, "sandbox execution failed") {
		t.Errorf("result = %+v", res)
	}
	if acq.released != 1 {
		t.Errorf("released %d times, want 1", acq.released)
	}
}

func TestTimeoutSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{30 * time.Second, 30},
		{1500 * time.Millisecond, 2},
		{100 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		if got := timeoutSeconds(tt.in); got != tt.want {
			t.Errorf("timeoutSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
