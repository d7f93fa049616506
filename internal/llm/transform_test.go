package llm

import (
	"encoding/json"
	"testing"
)

func wire(body string) WireResponse {
	w := WireResponse{StatusCode: 200, Body: []byte(body)}
	var parsed interface{}
	if err := json.Unmarshal(w.Body, &parsed); err == nil {
		w.JSON = parsed
	}
	return w
}

func TestOpenAIResponseTransformer_ContentIdentity(t *testing.T) {
	contents := []string{
		"",
		"plain",
		"  leading and trailing spaces  ",
		"multi\nline\n\ttabbed",
		"unicode: héllo 世界 🚀",
		`quotes "inside" and \ backslashes`,
	}
	for _, content := range contents {
		encoded, _ := json.Marshal(content)
		body := `{"choices":[{"message":{"content":` + string(encoded) + `},"finish_reason":"stop"}]}`
		resp, err := OpenAIResponseTransformer(wire(body))
		if err != nil {
			t.Fatalf("transform(%q) error = %v", content, err)
		}
		if resp.Content != content {
			t.Errorf("Content = %q, want %q", resp.Content, content)
		}
	}
}

func TestOpenAIResponseTransformer_NoChoices(t *testing.T) {
	if _, err := OpenAIResponseTransformer(wire(`{"choices":[]}`)); err == nil {
		t.Error("expected error for empty choices")
	}
	if _, err := OpenAIResponseTransformer(wire(`{"error":{"message":"nope"}}`)); err == nil {
		t.Error("expected error for error body")
	}
}

func TestOpenAIRequestTransformer(t *testing.T) {
	temp := 0.2
	body, err := OpenAIRequestTransformer(TransformInput{
		Model:        "m",
		Messages:     []Message{{Role: RoleUser, Content: "hi"}},
		SystemPrompt: "sys",
		Stream:       true,
		Tools:        []Tool{{Name: "t", Description: "d", InputSchema: map[string]interface{}{"type": "object"}}},
		ToolChoice:   "auto",
		Temperature:  &temp,
	})
	if err != nil {
		t.Fatalf("transform error = %v", err)
	}
	req := body.(openaiRequest)
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[0].Content != "sys" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if !req.Stream || req.Model != "m" || *req.Temperature != 0.2 {
		t.Errorf("req = %+v", req)
	}
	if len(req.Tools) != 1 || req.Tools[0].Type != "function" || req.Tools[0].Function.Name != "t" {
		t.Errorf("tools = %+v", req.Tools)
	}
	if req.ToolChoice != "auto" {
		t.Errorf("tool_choice = %v", req.ToolChoice)
	}
}

func TestOpenAIRequestTransformer_NoToolChoiceWithoutTools(t *testing.T) {
	body, err := OpenAIRequestTransformer(TransformInput{
		Messages:   []Message{{Role: RoleUser, Content: "hi"}},
		ToolChoice: "required",
	})
	if err != nil {
		t.Fatalf("transform error = %v", err)
	}
	data, _ := json.Marshal(body)
	var m map[string]interface{}
	json.Unmarshal(data, &m)
	if _, ok := m["tool_choice"]; ok {
		t.Errorf("tool_choice sent without tools: %s", data)
	}
	if _, ok := m["tools"]; ok {
		t.Errorf("empty tools sent: %s", data)
	}
}

func TestOpenAIRequestTransformer_Empty(t *testing.T) {
	if _, err := OpenAIRequestTransformer(TransformInput{}); err == nil {
		t.Error("expected error for empty message list")
	}
}

func TestOpenAIStreamTransformer(t *testing.T) {
	ev, err := OpenAIStreamTransformer(json.RawMessage(`{"choices":[{"delta":{"content":"x","tool_calls":[{"index":2,"id":"c","function":{"name":"n","arguments":"{"}}]},"finish_reason":null}]}`))
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if ev.Content != "x" || ev.Done {
		t.Errorf("ev = %+v", ev)
	}
	if len(ev.ToolCalls) != 1 || ev.ToolCalls[0].Index != 2 || ev.ToolCalls[0].Arguments != "{" {
		t.Errorf("tool calls = %+v", ev.ToolCalls)
	}

	ev, _ = OpenAIStreamTransformer(json.RawMessage(`{"choices":[{"delta":{"tool_calls":[{"id":"c2","function":{"name":"n"}}]}}]}`))
	if ev.ToolCalls[0].Index != -1 {
		t.Errorf("missing index = %d, want -1", ev.ToolCalls[0].Index)
	}

	ev, _ = OpenAIStreamTransformer(json.RawMessage(`{"choices":[{"delta":{},"finish_reason":"length"}]}`))
	if !ev.Done || ev.FinishReason != "length" {
		t.Errorf("ev = %+v", ev)
	}

	ev, _ = OpenAIStreamTransformer(json.RawMessage(`{"id":"x","choices":[]}`))
	if ev != nil {
		t.Errorf("ev = %+v, want nil", ev)
	}
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"{", 0},
		{"[1,2]", 0},
		{"null", 0},
		{`{"a":1,"b":"c"}`, 2},
	}
	for _, tt := range tests {
		got := ParseArguments(tt.in)
		if got == nil {
			t.Errorf("ParseArguments(%q) = nil", tt.in)
			continue
		}
		if len(got) != tt.want {
			t.Errorf("ParseArguments(%q) has %d keys, want %d", tt.in, len(got), tt.want)
		}
	}
}
