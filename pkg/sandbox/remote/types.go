// Package remote runs generated code on a sandbox server (cmd/sandbox-server)
// instead of a local child process.
package remote

// Request is the body of POST /execute on the sandbox server.
type Request struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// Files maps slash-separated paths relative to the execution directory
	// to base64 content. Used to ship the tool wrappers.
	Files map[string]string `json:"files,omitempty"`
	// Env is added to the child environment.
	Env map[string]string `json:"env,omitempty"`
}

// Response is the body returned by POST /execute.
type Response struct {
	Status          string `json:"status"` // success, error or failed
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusFailed  = "failed"
)
