package chat

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mainbong/copilot_kit/internal/llm"
	"github.com/mainbong/copilot_kit/internal/tools"
)

var (
	functionCallPattern = regexp.MustCompile(`(?s)<function_call>(.*?)</function_call>`)
	searchPattern       = regexp.MustCompile(`\[SEARCH:\s*(.+?)\]`)
)

// ParseResponse extracts tool calls embedded in plain model text. It is used
// for providers that cannot return structured function calls.
//
// Format: <function_call>{"name": "web_search", "input": {...}}</function_call>
// Shorthand: [SEARCH: query]
func ParseResponse(response string) ([]llm.ToolCall, string) {
	var calls []llm.ToolCall

	for _, match := range functionCallPattern.FindAllStringSubmatch(response, -1) {
		var call struct {
			Name      string                 `json:"name"`
			Input     map[string]interface{} `json:"input"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &call); err != nil || call.Name == "" {
			continue
		}
		args := call.Input
		if args == nil {
			args = call.Arguments
		}
		if args == nil {
			args = map[string]interface{}{}
		}
		calls = append(calls, llm.ToolCall{ID: newCallID(), Name: call.Name, Arguments: args})
		response = strings.Replace(response, match[0], "", 1)
	}

	for _, match := range searchPattern.FindAllStringSubmatch(response, -1) {
		calls = append(calls, llm.ToolCall{
			ID:        newCallID(),
			Name:      tools.WebSearchTool,
			Arguments: map[string]interface{}{"query": strings.TrimSpace(match[1])},
		})
		response = strings.Replace(response, match[0], "", 1)
	}

	return calls, strings.TrimSpace(response)
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

// FormatToolResult formats a tool result for LLM context
func FormatToolResult(toolName string, result string, success bool) string {
	status := "success"
	if !success {
		status = "error"
	}
	return fmt.Sprintf("<tool_result name=\"%s\" status=\"%s\">%s</tool_result>", toolName, status, result)
}

// FormatToolCall renders a call in the text form ParseResponse understands
func FormatToolCall(call llm.ToolCall) string {
	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	data, err := json.Marshal(map[string]interface{}{"name": call.Name, "input": args})
	if err != nil {
		return ""
	}
	return "<function_call>" + string(data) + "</function_call>"
}
