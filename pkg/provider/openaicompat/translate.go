package openaicompat

import (
	"github.com/rhuss/finquery/pkg/provider"
)

// TranslateToChat converts a provider Request into a ChatCompletionRequest.
// The system instruction, if any, becomes the leading system message.
func TranslateToChat(req *provider.Request) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		N:           1,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		cr.MaxTokens = &maxTokens
	}

	if req.System != "" {
		cr.Messages = append(cr.Messages, ChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, ChatMessage{Role: m.Role, Content: m.Content})
	}

	return cr
}
