package llm

import (
	"context"
	"time"
)

// Provider is the capability surface every backend adapter implements.
// Providers never retry; retry and failover belong to the caller.
type Provider interface {
	// Name returns the registry name of the provider
	Name() string

	// Model returns the model name being used
	Model() string

	// Capabilities declares optional features
	Capabilities() Capabilities

	// Authenticate checks that credentials are usable
	Authenticate(ctx context.Context) error

	// ValidateConfig checks the static configuration
	ValidateConfig() error

	// CheckHealth probes the backend; nil means healthy
	CheckHealth(ctx context.Context) error

	// SendMessage performs one non-streaming exchange
	SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// SendMessageStream performs one streaming exchange, delivering chunks in order
	SendMessageStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) error

	// Metrics returns a snapshot of request statistics
	Metrics() Metrics

	// RecordMetrics is called by the caller after every exchange
	RecordMetrics(latency time.Duration, isError bool)
}
