package llm

import (
	"encoding/json"
	"unicode"
)

// per-message framing (role markers, separators)
const messageOverheadTokens = 4

// EstimateTokens approximates the prompt size of a message list. It never returns less than 1.
func EstimateTokens(messages []Message) int {
	n := 0
	for _, msg := range messages {
		n += messageOverheadTokens + textTokens(msg.Content)
	}
	return max(n, 1)
}

// EstimateRequestTokens is EstimateTokens plus the system prompt and tool schemas
func EstimateRequestTokens(req ChatRequest) int {
	n := EstimateTokens(req.Messages)
	if req.SystemPrompt != "" {
		n += messageOverheadTokens + textTokens(req.SystemPrompt)
	}
	for _, tool := range req.Tools {
		n += textTokens(tool.Name) + textTokens(tool.Description)
		if schema, err := json.Marshal(tool.InputSchema); err == nil {
			n += textTokens(string(schema))
		}
	}
	return n
}

// textTokens counts latin text at about four bytes per token and
// ideographic or other wide runes at one token each
func textTokens(text string) int {
	if text == "" {
		return 0
	}
	narrowBytes, wide := 0, 0
	for _, r := range text {
		switch {
		case r <= unicode.MaxASCII:
			narrowBytes++
		case unicode.In(r, unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana):
			wide++
		default:
			narrowBytes += 2
		}
	}
	return max(wide+(narrowBytes+3)/4, 1)
}
