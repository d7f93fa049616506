package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/sse"
)

const maxToolErrorBody = 4096

// InvocationRequest is the body POSTed to a remote tool endpoint
type InvocationRequest struct {
	ToolID     string                 `json:"toolId"`
	Parameters map[string]interface{} `json:"parameters"`
	Context    Context                `json:"context"`
}

// StreamEvent is one frame of a streaming tool response
type StreamEvent struct {
	Delta   string          `json:"delta,omitempty"`
	Content string          `json:"content,omitempty"`
	Final   json.RawMessage `json:"final,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (d *Dispatcher) newToolRequest(ctx context.Context, desc Descriptor, args map[string]interface{}, accept string) (*http.Request, error) {
	toolID := desc.ID
	if toolID == "" {
		toolID = desc.Name
	}
	body, err := json.Marshal(InvocationRequest{
		ToolID:     toolID,
		Parameters: args,
		Context:    d.invocationContext(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.Route, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	return req, nil
}

func (d *Dispatcher) send(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxToolErrorBody))
		resp.Body.Close()
		return nil, fmt.Errorf("tool endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// callHTTP posts the invocation and decodes the JSON body as the result
func (d *Dispatcher) callHTTP(ctx context.Context, desc Descriptor, args map[string]interface{}) (interface{}, error) {
	req, err := d.newToolRequest(ctx, desc, args, "application/json")
	if err != nil {
		return nil, err
	}
	resp, err := d.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tool result: %w", err)
	}
	return result, nil
}

// callSSE posts the invocation and reads the response as an event stream.
// Text deltas are appended to one assistant message created on the first
// non-empty delta; a final field becomes the result.
func (d *Dispatcher) callSSE(ctx context.Context, desc Descriptor, args map[string]interface{}) (interface{}, error) {
	req, err := d.newToolRequest(ctx, desc, args, "text/event-stream")
	if err != nil {
		return nil, err
	}
	resp, err := d.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	stream := newSinkStream(d.currentSink())
	var text strings.Builder
	var final interface{}
	hasFinal := false

	events := sse.NewReader(resp.Body)
	for {
		payload, err := events.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tool stream: %w", err)
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			logger.Debug("tool %s: skipping malformed stream line: %.120s", desc.DisplayName(), payload)
			continue
		}
		if ev.Error != "" {
			return nil, fmt.Errorf("tool reported an error: %s", ev.Error)
		}

		delta := ev.Delta
		if delta == "" {
			delta = ev.Content
		}
		text.WriteString(delta)
		stream.write(delta)

		if len(ev.Final) > 0 {
			if err := json.Unmarshal(ev.Final, &final); err != nil {
				final = string(ev.Final)
			}
			hasFinal = true
		}
	}

	if hasFinal {
		return final, nil
	}
	return text.String(), nil
}
