package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	AnthropicAPIVersion       = "2023-06-01"
	anthropicDefaultMaxTokens = 4096
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	ToolChoice  interface{}        `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type  string                 `json:"type"` // "text" or "tool_use"
	Text  string                 `json:"text,omitempty"`
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

type anthropicTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *anthropicUsage) toUsage() *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      *anthropicUsage         `json:"usage,omitempty"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicStreamEvent struct {
	Type         string                 `json:"type"`
	Index        int                    `json:"index"`
	Delta        *anthropicDelta        `json:"delta,omitempty"`
	ContentBlock *anthropicContentBlock `json:"content_block,omitempty"`
	Message      *anthropicResponse     `json:"message,omitempty"`
	Usage        *anthropicUsage        `json:"usage,omitempty"`
	Error        *anthropicError        `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"` // "text_delta" or "input_json_delta"
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// AnthropicRequestTransformer builds a Messages API request. System messages
// are folded into the system field and consecutive turns of one role are merged.
func AnthropicRequestTransformer(in TransformInput) (interface{}, error) {
	system := []string{}
	if strings.TrimSpace(in.SystemPrompt) != "" {
		system = append(system, in.SystemPrompt)
	}

	messages := make([]anthropicMessage, 0, len(in.Messages))
	for _, msg := range in.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		block := anthropicContentBlock{Type: "text", Text: msg.Content}
		if n := len(messages); n > 0 && messages[n-1].Role == msg.Role {
			messages[n-1].Content = append(messages[n-1].Content, block)
			continue
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: []anthropicContentBlock{block}})
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	req := anthropicRequest{
		Model:       in.Model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		Stream:      in.Stream,
		System:      strings.Join(system, "\n\n"),
		Temperature: in.Temperature,
	}
	if len(in.Tools) > 0 {
		for _, tool := range in.Tools {
			req.Tools = append(req.Tools, anthropicTool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
		req.ToolChoice = anthropicToolChoice(in.ToolChoice)
	}
	return req, nil
}

// anthropicToolChoice maps the chat-completions tool_choice values onto the Messages API shape
func anthropicToolChoice(choice interface{}) interface{} {
	switch v := choice.(type) {
	case nil:
		return nil
	case string:
		switch v {
		case "", "auto":
			return map[string]string{"type": "auto"}
		case "required", "any":
			return map[string]string{"type": "any"}
		case "none":
			return map[string]string{"type": "none"}
		default:
			return map[string]string{"type": "tool", "name": v}
		}
	case map[string]interface{}:
		if fn, ok := v["function"].(map[string]interface{}); ok {
			if name, ok := fn["name"].(string); ok {
				return map[string]string{"type": "tool", "name": name}
			}
		}
		return v
	default:
		return v
	}
}

// AnthropicResponseTransformer joins the text blocks of a Messages API response
func AnthropicResponseTransformer(resp WireResponse) (*ChatResponse, error) {
	if resp.JSON == nil {
		return &ChatResponse{Content: resp.Text(), FinishReason: "stop"}, nil
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("backend error: %s", parsed.Error.Message)
	}

	var content strings.Builder
	out := &ChatResponse{
		FinishReason: parsed.StopReason,
		Usage:        parsed.Usage.toUsage(),
		Raw:          json.RawMessage(resp.Body),
	}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			args := block.Input
			if args == nil {
				args = make(map[string]interface{})
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	out.Content = content.String()
	return out, nil
}

// AnthropicStreamTransformer classifies one Messages API stream event
func AnthropicStreamTransformer(event json.RawMessage) (*StreamEvent, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		return nil, err
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil && ev.Message.Usage != nil {
			return &StreamEvent{Usage: ev.Message.Usage.toUsage()}, nil
		}
		return nil, nil

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			return &StreamEvent{ToolCalls: []ToolCallDelta{{
				Index: ev.Index,
				ID:    ev.ContentBlock.ID,
				Name:  ev.ContentBlock.Name,
			}}}, nil
		}
		if ev.ContentBlock != nil && ev.ContentBlock.Text != "" {
			return &StreamEvent{Content: ev.ContentBlock.Text}, nil
		}
		return nil, nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return &StreamEvent{Content: ev.Delta.Text}, nil
		case "input_json_delta":
			return &StreamEvent{ToolCalls: []ToolCallDelta{{
				Index:     ev.Index,
				Arguments: ev.Delta.PartialJSON,
			}}}, nil
		}
		return nil, nil

	case "message_delta":
		out := &StreamEvent{Usage: ev.Usage.toUsage()}
		if ev.Delta != nil {
			out.FinishReason = ev.Delta.StopReason
		}
		return out, nil

	case "message_stop":
		return &StreamEvent{Done: true}, nil

	case "error":
		msg := "unknown stream error"
		if ev.Error != nil {
			msg = ev.Error.Type + ": " + ev.Error.Message
		}
		return &StreamEvent{Err: msg}, nil
	}

	// ping, content_block_stop
	return nil, nil
}
