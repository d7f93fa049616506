package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a chat message
type Message struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewMessage creates a message stamped with the current time
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// Usage reports token consumption for one exchange
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Tool is the definition of a callable function as advertised to the model
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

// ToolCall is a fully reassembled function call request from the model
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolCallDelta is one fragment of a tool call inside a streamed response.
// Index < 0 means the backend supplied no index and the fragment is keyed by ID.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallHandler receives resolved tool calls at the end of a streamed exchange
type ToolCallHandler func(ctx context.Context, call ToolCall)

// ChatRequest is the provider-neutral input of one exchange
type ChatRequest struct {
	Messages     []Message
	SystemPrompt string
	Tools        []Tool
	ToolChoice   interface{}
	Debug        bool

	// OnToolCall is invoked once per resolved tool call, after all content
	// deltas of the exchange and before the terminal chunk.
	OnToolCall ToolCallHandler
}

// ChatResponse is the result of a non-streaming exchange
type ChatResponse struct {
	Content      string          `json:"content"`
	FinishReason string          `json:"finish_reason"`
	Usage        *Usage          `json:"usage,omitempty"`
	ToolCalls    []ToolCall      `json:"tool_calls,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// StreamChunk is one unit delivered to a streaming caller
type StreamChunk struct {
	Content    string          `json:"content"`
	IsComplete bool            `json:"is_complete"`
	Usage      *Usage          `json:"usage,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// StreamEvent is the provider-neutral classification of one wire stream event.
// A stream transformer produces it; the reassembly engine consumes it.
type StreamEvent struct {
	Content      string
	ToolCalls    []ToolCallDelta
	Done         bool
	FinishReason string
	Usage        *Usage
	Err          string
}

// Capabilities declares what a provider supports so callers can degrade
type Capabilities struct {
	SupportsStreaming  bool `json:"supports_streaming"`
	MaxContextLength   int  `json:"max_context_length"`
	SupportsFunctions  bool `json:"supports_functions"`
	SupportsEmbeddings bool `json:"supports_embeddings"`
	SupportsBatching   bool `json:"supports_batching"`
}

// LocalConfig overrides transport details of a provider
type LocalConfig struct {
	Endpoint       string            `json:"endpoint,omitempty"`
	PathTemplate   string            `json:"path_template,omitempty"`
	Method         string            `json:"method,omitempty"`
	AuthHeaderName string            `json:"auth_header_name,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	HealthPath     string            `json:"health_path,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
}

// FailoverConfig is the ordered fallback policy
type FailoverConfig struct {
	Enabled             bool          `json:"enabled"`
	FallbackProviders   []string      `json:"fallback_providers,omitempty"`
	HealthCheckInterval time.Duration `json:"health_check_interval,omitempty"`
}

// MonitoringHooks are optional observers of provider state
type MonitoringHooks struct {
	OnMetrics      func(provider string, m Metrics) `json:"-"`
	OnStatusChange func(status ProviderStatus)      `json:"-"`
}

// EnterpriseConfig groups failover policy and monitoring hooks
type EnterpriseConfig struct {
	Failover   FailoverConfig  `json:"failover"`
	Monitoring MonitoringHooks `json:"-"`
}

// ProviderConfig is supplied once at provider construction and read-only afterwards
type ProviderConfig struct {
	ModelProvider string            `json:"model_provider"`
	Model         string            `json:"model,omitempty"`
	APIKey        string            `json:"api_key,omitempty"`
	BaseURL       string            `json:"base_url,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Local         *LocalConfig      `json:"local,omitempty"`
	Enterprise    *EnterpriseConfig `json:"enterprise,omitempty"`
}

// ProviderStatus is the health record of one provider.
// Records are replaced whole, never mutated in place.
type ProviderStatus struct {
	Name        string    `json:"name"`
	IsAvailable bool      `json:"is_available"`
	IsHealthy   bool      `json:"is_healthy"`
	LastChecked time.Time `json:"last_checked"`
	Error       string    `json:"error,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}
