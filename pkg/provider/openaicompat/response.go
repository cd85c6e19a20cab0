package openaicompat

import (
	"github.com/rhuss/finquery/pkg/provider"
)

// TranslateResponse converts a ChatCompletionResponse into a provider
// Response. Only choices[0] is used.
func TranslateResponse(resp *ChatCompletionResponse) *provider.Response {
	pr := &provider.Response{
		Model: resp.Model,
	}

	if resp.Usage != nil {
		pr.Usage = provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return pr
	}

	choice := resp.Choices[0]
	pr.StopReason = choice.FinishReason
	if text := ExtractContentString(choice.Message.Content); text != "" {
		pr.Parts = append(pr.Parts, provider.Part{Type: provider.PartTypeText, Text: text})
	}

	return pr
}

// ExtractContentString gets plain text from message content, which is either
// a string or a list of typed parts.
func ExtractContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t != "text" {
				continue
			}
			if s, ok := m["text"].(string); ok {
				out += s
			}
		}
		return out
	default:
		return ""
	}
}
