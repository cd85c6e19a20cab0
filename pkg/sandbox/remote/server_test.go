package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"

	"github.com/rhuss/finquery/pkg/sandbox"
)

func newShellServer(t *testing.T) *httptest.Server {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not in PATH")
	}
	srv := httptest.NewServer(NewServer(ServerConfig{Mode: sandbox.ModeShell}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, req any) (*http.Response, Response) {
	t.Helper()
	body, _ := json.Marshal(req)
	resp, err := http.Post(srv.URL+"/execute", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out Response
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestServer_ExecutesWithFilesAndEnv(t *testing.T) {
	srv := newShellServer(t)

	resp, out := post(t, srv, Request{
		Code: "cat servers/alphavantage/NOTE.txt\nprintf %s \"$GREETING\"",
		Files: map[string]string{
			"servers/alphavantage/NOTE.txt": base64.StdEncoding.EncodeToString([]byte("shipped\n")),
		},
		Env: map[string]string{"GREETING": "hello"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.Status != StatusSuccess || out.Stdout != "shipped\nhello" {
		t.Errorf("response = %+v", out)
	}
}

func TestServer_ReportsFailures(t *testing.T) {
	srv := newShellServer(t)

	_, out := post(t, srv, Request{Code: "echo oops >&2\nexit 2"})
	if out.Status != StatusError || out.ExitCode != 2 || strings.TrimSpace(out.Stderr) != "oops" {
		t.Errorf("exit response = %+v", out)
	}

	_, out = post(t, srv, Request{Code: "sleep 10", TimeoutSeconds: 1})
	if out.Status != StatusFailed || out.ExitCode != sandbox.FailureExitCode || out.Stderr != "Execution timed out after 1 seconds" {
		t.Errorf("timeout response = %+v", out)
	}
}

func TestServer_RejectsBadRequests(t *testing.T) {
	srv := newShellServer(t)

	tests := []struct {
		name string
		req  any
	}{
		{"missing code", Request{}},
		{"path traversal", Request{Code: "true", Files: map[string]string{"../escape.py": ""}}},
		{"absolute path", Request{Code: "true", Files: map[string]string{"/etc/passwd": ""}}},
		{"bad base64", Request{Code: "true", Files: map[string]string{"a.py": "!!!"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := post(t, srv, tt.req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestServer_Health(t *testing.T) {
	srv := httptest.NewServer(NewServer(ServerConfig{MaxConcurrent: 5}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h healthResponse
	json.NewDecoder(resp.Body).Decode(&h)
	if h.Status != "healthy" || h.Capacity != 5 || h.Mode != sandbox.ModePython {
		t.Errorf("health = %+v", h)
	}
}

func TestExecutorAgainstServer(t *testing.T) {
	srv := newShellServer(t)

	e, err := NewExecutor(StaticAcquirer{URL: srv.URL}, Config{
		SourceDir:   writeSource(t),
		ShipPattern: "servers/**/*.py",
	})
	if err != nil {
		t.Fatal(err)
	}
	res := e.Execute(context.Background(), "ls servers/alphavantage")
	if !res.Succeeded || !strings.Contains(res.Stdout, "GLOBAL_QUOTE.py") {
		t.Errorf("result = %+v", res)
	}
}
