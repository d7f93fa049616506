package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransformInput carries everything a request transformer may need
type TransformInput struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Stream       bool
	Tools        []Tool
	ToolChoice   interface{}
	Debug        bool
	Temperature  *float64
	MaxTokens    int
}

// WireResponse is a raw non-streaming backend response.
// JSON is nil when the body is not valid JSON.
type WireResponse struct {
	StatusCode int
	Body       []byte
	JSON       interface{}
}

// Text returns the body as a string
func (w WireResponse) Text() string {
	return string(w.Body)
}

// RequestTransformer builds the vendor-shaped request body
type RequestTransformer func(in TransformInput) (interface{}, error)

// ResponseTransformer turns a vendor response into a ChatResponse
type ResponseTransformer func(resp WireResponse) (*ChatResponse, error)

// StreamTransformer classifies one vendor stream event.
// Returning (nil, nil) ignores the event.
type StreamTransformer func(event json.RawMessage) (*StreamEvent, error)

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	ToolChoice  interface{}     `json:"tool_choice,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *openaiUsage) toUsage() *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type openaiToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content   *string          `json:"content"`
			ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openaiStreamResponse struct {
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openaiStreamChoice struct {
	Index        int         `json:"index"`
	Delta        openaiDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type openaiDelta struct {
	Content   string                `json:"content"`
	ToolCalls []openaiToolCallDelta `json:"tool_calls,omitempty"`
}

type openaiToolCallDelta struct {
	Index    *int                `json:"index,omitempty"`
	ID       string              `json:"id,omitempty"`
	Type     string              `json:"type,omitempty"`
	Function openaiFunctionDelta `json:"function,omitempty"`
}

type openaiFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// OpenAIRequestTransformer builds a chat-completions request body.
// The system prompt, when set, is sent as the first message.
func OpenAIRequestTransformer(in TransformInput) (interface{}, error) {
	messages := make([]openaiMessage, 0, len(in.Messages)+1)
	if strings.TrimSpace(in.SystemPrompt) != "" {
		messages = append(messages, openaiMessage{Role: RoleSystem, Content: in.SystemPrompt})
	}
	for _, msg := range in.Messages {
		messages = append(messages, openaiMessage{Role: msg.Role, Content: msg.Content})
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	req := openaiRequest{
		Model:       in.Model,
		Messages:    messages,
		Stream:      in.Stream,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}

	if len(in.Tools) > 0 {
		tools := make([]openaiTool, 0, len(in.Tools))
		for _, tool := range in.Tools {
			tools = append(tools, openaiTool{
				Type: "function",
				Function: openaiToolFunction{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.InputSchema,
				},
			})
		}
		req.Tools = tools
		req.ToolChoice = in.ToolChoice
	}

	return req, nil
}

// OpenAIResponseTransformer reads choices[0] of a chat-completions response.
// A non-JSON body is returned verbatim as content.
func OpenAIResponseTransformer(resp WireResponse) (*ChatResponse, error) {
	if resp.JSON == nil {
		return &ChatResponse{Content: resp.Text(), FinishReason: "stop", Raw: nil}, nil
	}

	var parsed openaiResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil && len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	choice := parsed.Choices[0]
	out := &ChatResponse{
		FinishReason: choice.FinishReason,
		Usage:        parsed.Usage.toUsage(),
		Raw:          json.RawMessage(resp.Body),
	}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: ParseArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

// OpenAIStreamTransformer classifies one chat-completions chunk
func OpenAIStreamTransformer(event json.RawMessage) (*StreamEvent, error) {
	var chunk openaiStreamResponse
	if err := json.Unmarshal(event, &chunk); err != nil {
		return nil, err
	}
	if chunk.Error != nil {
		return &StreamEvent{Err: chunk.Error.Message}, nil
	}

	ev := &StreamEvent{Usage: chunk.Usage.toUsage()}
	if len(chunk.Choices) == 0 {
		if ev.Usage == nil {
			return nil, nil
		}
		return ev, nil
	}

	choice := chunk.Choices[0]
	ev.Content = choice.Delta.Content
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		ev.Done = true
		ev.FinishReason = *choice.FinishReason
	}
	for _, tc := range choice.Delta.ToolCalls {
		idx := -1
		if tc.Index != nil {
			idx = *tc.Index
		}
		ev.ToolCalls = append(ev.ToolCalls, ToolCallDelta{
			Index:     idx,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return ev, nil
}

// ParseArguments decodes accumulated argument text; empty or invalid text yields an empty object
func ParseArguments(text string) map[string]interface{} {
	args := make(map[string]interface{})
	if strings.TrimSpace(text) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(text), &args); err != nil || args == nil {
		return make(map[string]interface{})
	}
	return args
}
