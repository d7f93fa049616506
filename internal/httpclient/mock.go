package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// HandlerFunc produces a response for a captured request
type HandlerFunc func(req *http.Request, body []byte) (*http.Response, error)

type mockResponse struct {
	statusCode int
	body       []byte
	headers    map[string]string
}

// MockHTTPClient is a mock implementation of HTTPClient for testing.
// Responses are keyed by URL; bodies are replayed on every call.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses map[string]mockResponse
	handlers  map[string]HandlerFunc
	errors    map[string]error
	requests  []*http.Request
	bodies    [][]byte
}

// NewMockHTTPClient creates a new MockHTTPClient instance
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		responses: make(map[string]mockResponse),
		handlers:  make(map[string]HandlerFunc),
		errors:    make(map[string]error),
	}
}

// SetResponse sets a mock response for a URL
func (m *MockHTTPClient) SetResponse(url string, statusCode int, body string, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = mockResponse{statusCode: statusCode, body: []byte(body), headers: headers}
}

// SetHandler installs a handler for a URL; it takes precedence over SetResponse
func (m *MockHTTPClient) SetHandler(url string, handler HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[url] = handler
}

// SetError sets an error to return for a URL
func (m *MockHTTPClient) SetError(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[url] = err
}

// GetRequests returns all requests made to this client
func (m *MockHTTPClient) GetRequests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestBodies returns the bodies of all requests, in call order
func (m *MockHTTPClient) GetRequestBodies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.bodies))
	copy(out, m.bodies)
	return out
}

// ClearRequests clears the request history
func (m *MockHTTPClient) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.bodies = nil
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)
	url := req.URL.String()
	err, hasErr := m.errors[url]
	handler := m.handlers[url]
	resp, hasResp := m.responses[url]
	m.mu.Unlock()

	if hasErr {
		return nil, err
	}
	if handler != nil {
		return handler(req, body)
	}
	if hasResp {
		return NewResponse(resp.statusCode, string(resp.body), resp.headers), nil
	}

	// Default: return 404
	return NewResponse(http.StatusNotFound, "Not Found", nil), nil
}

// NewResponse builds an *http.Response with a fresh body reader
func NewResponse(statusCode int, body string, headers map[string]string) *http.Response {
	resp := &http.Response{
		Status:     http.StatusText(statusCode),
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}
