package httpclient

import (
	"net/http"
	"time"
)

// DefaultTimeout applies to non-streaming requests issued through NewDefaultHTTPClient
const DefaultTimeout = 120 * time.Second

// HTTPClient abstracts HTTP client operations for testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient implements HTTPClient using the standard http.Client
type DefaultHTTPClient struct {
	client *http.Client
}

// NewDefaultHTTPClient creates a new DefaultHTTPClient instance.
// No overall timeout is set so long-lived event streams are not cut off;
// callers bound requests through their context.
func NewDefaultHTTPClient() *DefaultHTTPClient {
	return &DefaultHTTPClient{
		client: &http.Client{},
	}
}

// NewDefaultHTTPClientWithTimeout creates a client whose requests are bounded by timeout
func NewDefaultHTTPClientWithTimeout(timeout time.Duration) *DefaultHTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}
