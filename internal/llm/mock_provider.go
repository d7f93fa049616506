package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockProvider is a mock implementation of Provider for testing
type MockProvider struct {
	mu sync.Mutex

	name         string
	model        string
	capabilities Capabilities
	chatResponse string
	streamChunks []string
	toolCalls    []ToolCall
	usage        *Usage
	chatError    error
	streamError  error
	authError    error
	healthError  error

	onSendMessage       func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	onSendMessageStream func(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) error

	requests []ChatRequest
	metrics  metricsRecorder
}

// NewMockProvider creates a new MockProvider instance
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:  "mock",
		model: "mock-model",
		capabilities: Capabilities{
			SupportsStreaming: true,
			MaxContextLength:  8192,
			SupportsFunctions: true,
		},
	}
}

// NewNamedMockProvider creates a MockProvider registered under name
func NewNamedMockProvider(name string) *MockProvider {
	m := NewMockProvider()
	m.name = name
	return m
}

// SetChatResponse sets the content returned by SendMessage
func (m *MockProvider) SetChatResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatResponse = response
}

// SetStreamChunks sets the content deltas delivered by SendMessageStream
func (m *MockProvider) SetStreamChunks(chunks []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
}

// SetToolCalls sets the tool calls produced by both send paths
func (m *MockProvider) SetToolCalls(toolCalls []ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = toolCalls
}

// SetUsage sets the usage reported on responses and the terminal chunk
func (m *MockProvider) SetUsage(usage *Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage
}

// SetCapabilities replaces the declared capabilities
func (m *MockProvider) SetCapabilities(c Capabilities) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilities = c
}

// SetChatError sets an error to return from SendMessage
func (m *MockProvider) SetChatError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatError = err
}

// SetStreamError sets an error to return from SendMessageStream
func (m *MockProvider) SetStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamError = err
}

// SetAuthError sets an error to return from Authenticate
func (m *MockProvider) SetAuthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authError = err
}

// SetHealthError sets an error to return from CheckHealth
func (m *MockProvider) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

// SetOnSendMessage installs a custom handler for SendMessage
func (m *MockProvider) SetOnSendMessage(handler func(ctx context.Context, req ChatRequest) (*ChatResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSendMessage = handler
}

// SetOnSendMessageStream installs a custom handler for SendMessageStream
func (m *MockProvider) SetOnSendMessageStream(handler func(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSendMessageStream = handler
}

// Requests returns every request received, in call order
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Model() string {
	return m.model
}

func (m *MockProvider) Capabilities() Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capabilities
}

func (m *MockProvider) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authError
}

func (m *MockProvider) ValidateConfig() error {
	return nil
}

func (m *MockProvider) CheckHealth(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthError
}

func (m *MockProvider) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	handler := m.onSendMessage
	chatErr := m.chatError
	content := m.chatResponse
	if content == "" {
		// If no response set, return concatenated stream chunks
		content = strings.Join(m.streamChunks, "")
	}
	calls := append([]ToolCall(nil), m.toolCalls...)
	usage := m.usage
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if chatErr != nil {
		return nil, chatErr
	}
	return &ChatResponse{Content: content, FinishReason: "stop", Usage: usage, ToolCalls: calls}, nil
}

func (m *MockProvider) SendMessageStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	handler := m.onSendMessageStream
	streamErr := m.streamError
	chunks := append([]string(nil), m.streamChunks...)
	calls := append([]ToolCall(nil), m.toolCalls...)
	usage := m.usage
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req, onChunk)
	}
	if streamErr != nil {
		return streamErr
	}

	for _, chunk := range chunks {
		if onChunk != nil {
			onChunk(StreamChunk{Content: chunk})
		}
	}
	// tool calls are handed over after all content, before completion
	for _, call := range calls {
		if req.OnToolCall != nil {
			req.OnToolCall(ctx, call)
		}
	}
	if onChunk != nil {
		onChunk(StreamChunk{IsComplete: true, Usage: usage})
	}
	return nil
}

func (m *MockProvider) Metrics() Metrics {
	return m.metrics.get()
}

func (m *MockProvider) RecordMetrics(latency time.Duration, isError bool) {
	m.metrics.record(latency, isError)
}

var _ Provider = (*MockProvider)(nil)
var _ Provider = (*CustomProvider)(nil)
