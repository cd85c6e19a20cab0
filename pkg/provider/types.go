package provider

import "strings"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PartTypeText marks a text content part.
const PartTypeText = "text"

// Request is the backend-facing request.
type Request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the backend's complete response.
type Response struct {
	Parts      []Part `json:"parts"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Part is one content block of a response. Non-text parts are kept so
// callers can see them in debug output, but Text ignores them.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage holds token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Text concatenates all text parts in order, with no separator.
func (r *Response) Text() string {
	var b strings.Builder
	for _, p := range r.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
