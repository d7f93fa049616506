package tools

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mainbong/copilot_kit/internal/llm"
)

// LocalRoute marks a descriptor served by an in-process runner
const LocalRoute = "__local__"

// Transport selects how a remote tool is invoked
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportSSE  Transport = "sse"
)

// Descriptor advertises one invocable tool to the model and to the dispatcher
type Descriptor struct {
	ID          string                 `json:"id" yaml:"id" toml:"id"`
	Name        string                 `json:"name" yaml:"name" toml:"name"`
	Description string                 `json:"description" yaml:"description" toml:"description"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty" yaml:"input_schema,omitempty" toml:"input_schema,omitempty"`
	Route       string                 `json:"route" yaml:"route" toml:"route"`
	Transport   Transport              `json:"transport,omitempty" yaml:"transport,omitempty" toml:"transport,omitempty"`
}

// IsLocal reports whether the descriptor is served by a registered runner
func (d Descriptor) IsLocal() bool {
	return d.Route == LocalRoute
}

// EffectiveTransport returns the transport, defaulting to SSE
func (d Descriptor) EffectiveTransport() Transport {
	if d.Transport == "" {
		return TransportSSE
	}
	return d.Transport
}

// DisplayName is the name used in user-visible messages
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Definition returns the tool definition sent to the model
func (d Descriptor) Definition() llm.Tool {
	key := d.ID
	if key == "" {
		key = d.Name
	}
	schema := interface{}(d.InputSchema)
	if d.InputSchema == nil {
		schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return llm.Tool{
		Name:        Sanitize(key),
		Description: d.Description,
		InputSchema: schema,
	}
}

// Validate checks a descriptor loaded from a manifest
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" && strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("tool descriptor needs an id or a name")
	}
	if d.Route == "" {
		return fmt.Errorf("tool %s: route is required", d.DisplayName())
	}
	if d.IsLocal() {
		return nil
	}
	switch d.EffectiveTransport() {
	case TransportHTTP, TransportSSE:
	default:
		return fmt.Errorf("tool %s: unknown transport %q", d.DisplayName(), d.Transport)
	}
	u, err := url.Parse(d.Route)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("tool %s: route %q is not an http(s) URL", d.DisplayName(), d.Route)
	}
	return nil
}

// Definitions converts descriptors to the tool list of a chat request
func Definitions(descriptors []Descriptor) []llm.Tool {
	out := make([]llm.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.Definition())
	}
	return out
}
