package llm

import (
	"errors"
	"fmt"
	"strings"
)

const maxErrorBodyChars = 500

var (
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrProviderExists      = errors.New("provider already registered")
	ErrMissingAPIKey       = errors.New("api key not set")
	ErrInvalidConfig       = errors.New("invalid provider config")
	ErrStreamClosed        = errors.New("stream closed")
)

// UpstreamError is a non-2xx response from the model backend
type UpstreamError struct {
	StatusCode int
	Endpoint   string
	Model      string
	Body       string
	PathType   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d from %s (model=%s, path=%s): %s",
		e.StatusCode, e.Endpoint, e.Model, e.PathType, e.Body)
}

func newUpstreamError(status int, endpoint, model, pathType, body string) *UpstreamError {
	return &UpstreamError{
		StatusCode: status,
		Endpoint:   endpoint,
		Model:      model,
		Body:       sanitizeErrorBody(body),
		PathType:   pathType,
	}
}

// TransportError is a network failure or timeout talking to a backend
type TransportError struct {
	Provider string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Provider, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamError is an error event sent by the backend inside a stream
type StreamError struct {
	Provider string
	Message  string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: stream error event: %s", e.Provider, e.Message)
}

// IsTransportError reports whether err is (or wraps) a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func sanitizeErrorBody(input string) string {
	scrubbed := scrubSecrets(strings.TrimSpace(input))
	runes := []rune(scrubbed)
	if len(runes) <= maxErrorBodyChars {
		return scrubbed
	}
	return string(runes[:maxErrorBodyChars]) + "..."
}

func scrubSecrets(input string) string {
	out := input
	for _, prefix := range []string{"sk-", "Bearer "} {
		searchFrom := 0
		for {
			rel := strings.Index(out[searchFrom:], prefix)
			if rel < 0 {
				break
			}
			start := searchFrom + rel
			end := start + len(prefix)
			for end < len(out) && isSecretByte(out[end]) {
				end++
			}
			if end == start+len(prefix) {
				searchFrom = end
				continue
			}
			out = out[:start] + "[REDACTED]" + out[end:]
			searchFrom = start + len("[REDACTED]")
		}
	}
	return out
}

func isSecretByte(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '_' || ch == '.'
}
