package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mainbong/copilot_kit/internal/httpclient"
	"github.com/mainbong/copilot_kit/internal/logger"
)

const (
	DefaultPathTemplate = "/v1/chat/completions"
	DefaultHealthPath   = "/health"

	defaultAuthHeader  = "Authorization"
	defaultAuthScheme  = "Bearer"
	healthCheckTimeout = 10 * time.Second
	maxErrorBodyBytes  = 64 * 1024
)

// DefaultAssumedHealthyHosts have no health endpoint and are treated as healthy
var DefaultAssumedHealthyHosts = []string{"api.openai.com", "api.anthropic.com"}

// CustomProviderOptions configures a CustomProvider. Every vendor preset is
// a value of this type; unset fields take the OpenAI-compatible defaults.
type CustomProviderOptions struct {
	Name   string
	Config ProviderConfig

	PathTemplate string // may contain {model}
	Method       string

	// AuthHeaderName defaults to Authorization with the Bearer scheme.
	// When a different header is named the key is sent without a scheme
	// unless AuthScheme is set.
	AuthHeaderName string
	AuthScheme     string
	Headers        map[string]string

	HealthPath          string
	AssumedHealthyHosts []string
	Capabilities        Capabilities

	RequestTransformer  RequestTransformer
	ResponseTransformer ResponseTransformer
	StreamTransformer   StreamTransformer

	Client           httpclient.HTTPClient
	RateLimiter      *RateLimiter
	RateLimitHeaders RateLimitHeaders

	// FallbackMessage replaces the content when a response cannot be transformed
	FallbackMessage string
	AllowAnonymous  bool
	RequireModel    bool
}

// CustomProvider drives any HTTP chat-completion backend through injected transformers
type CustomProvider struct {
	name         string
	config       ProviderConfig
	pathTemplate string
	method       string
	authHeader   string
	authScheme   string
	headers      map[string]string
	healthPath   string
	healthyHosts []string
	capabilities Capabilities
	timeout      time.Duration

	requestTransformer  RequestTransformer
	responseTransformer ResponseTransformer
	streamTransformer   StreamTransformer

	client           httpclient.HTTPClient
	rateLimiter      *RateLimiter
	rateLimitHeaders RateLimitHeaders
	fallbackMessage  string
	allowAnonymous   bool
	requireModel     bool

	metrics metricsRecorder
}

// NewCustomProvider builds a provider; local config overrides take precedence over options
func NewCustomProvider(opts CustomProviderOptions) *CustomProvider {
	p := &CustomProvider{
		name:                opts.Name,
		config:              opts.Config,
		pathTemplate:        opts.PathTemplate,
		method:              opts.Method,
		authHeader:          opts.AuthHeaderName,
		authScheme:          opts.AuthScheme,
		headers:             make(map[string]string),
		healthPath:          opts.HealthPath,
		healthyHosts:        opts.AssumedHealthyHosts,
		capabilities:        opts.Capabilities,
		requestTransformer:  opts.RequestTransformer,
		responseTransformer: opts.ResponseTransformer,
		streamTransformer:   opts.StreamTransformer,
		client:              opts.Client,
		rateLimiter:         opts.RateLimiter,
		rateLimitHeaders:    opts.RateLimitHeaders,
		fallbackMessage:     opts.FallbackMessage,
		allowAnonymous:      opts.AllowAnonymous,
		requireModel:        opts.RequireModel,
	}
	for k, v := range opts.Headers {
		p.headers[k] = v
	}

	if local := opts.Config.Local; local != nil {
		if local.PathTemplate != "" {
			p.pathTemplate = local.PathTemplate
		}
		if local.Method != "" {
			p.method = local.Method
		}
		if local.AuthHeaderName != "" && local.AuthHeaderName != p.authHeader {
			p.authHeader = local.AuthHeaderName
			p.authScheme = ""
		}
		for k, v := range local.Headers {
			p.headers[k] = v
		}
		if local.HealthPath != "" {
			p.healthPath = local.HealthPath
		}
		p.timeout = local.Timeout
	}

	if p.name == "" {
		p.name = opts.Config.ModelProvider
	}
	if p.name == "" {
		p.name = "custom"
	}
	if p.pathTemplate == "" {
		p.pathTemplate = DefaultPathTemplate
	}
	if p.method == "" {
		p.method = http.MethodPost
	}
	if p.authHeader == "" {
		p.authHeader = defaultAuthHeader
		if p.authScheme == "" {
			p.authScheme = defaultAuthScheme
		}
	}
	if p.healthPath == "" {
		p.healthPath = DefaultHealthPath
	}
	if p.healthyHosts == nil {
		p.healthyHosts = DefaultAssumedHealthyHosts
	}
	if p.requestTransformer == nil {
		p.requestTransformer = OpenAIRequestTransformer
	}
	if p.responseTransformer == nil {
		p.responseTransformer = OpenAIResponseTransformer
	}
	if p.streamTransformer == nil {
		p.streamTransformer = OpenAIStreamTransformer
	}
	if p.client == nil {
		p.client = httpclient.NewDefaultHTTPClient()
	}
	return p
}

func (p *CustomProvider) Name() string {
	return p.name
}

func (p *CustomProvider) Model() string {
	return p.config.Model
}

func (p *CustomProvider) Capabilities() Capabilities {
	return p.capabilities
}

// Endpoint returns the request URL and whether it uses the default or a custom path
func (p *CustomProvider) Endpoint() (endpoint string, pathType string) {
	base := p.config.BaseURL
	if p.config.Local != nil && p.config.Local.Endpoint != "" {
		base = p.config.Local.Endpoint
	}
	base = strings.TrimRight(base, "/")

	pathType = "custom"
	if p.pathTemplate == DefaultPathTemplate {
		pathType = "default"
	}

	path := strings.ReplaceAll(p.pathTemplate, "{model}", url.PathEscape(p.config.Model))
	if path == "" || path == "/" || strings.HasSuffix(base, path) {
		return base, pathType
	}
	return base + path, pathType
}

func (p *CustomProvider) baseURL() string {
	endpoint, _ := p.Endpoint()
	path := strings.ReplaceAll(p.pathTemplate, "{model}", url.PathEscape(p.config.Model))
	return strings.TrimSuffix(endpoint, path)
}

func (p *CustomProvider) ValidateConfig() error {
	endpoint, _ := p.Endpoint()
	if endpoint == "" {
		return fmt.Errorf("%s: %w: no endpoint configured", p.name, ErrInvalidConfig)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s: %w: endpoint %q is not an absolute http(s) URL", p.name, ErrInvalidConfig, endpoint)
	}
	if p.requireModel && strings.TrimSpace(p.config.Model) == "" {
		return fmt.Errorf("%s: %w: model is required", p.name, ErrInvalidConfig)
	}
	return nil
}

func (p *CustomProvider) Authenticate(ctx context.Context) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	if !p.allowAnonymous && strings.TrimSpace(p.config.APIKey) == "" {
		return fmt.Errorf("%s: %w", p.name, ErrMissingAPIKey)
	}
	return nil
}

// CheckHealth tries the health path, then a probe on the main endpoint.
// Hosts without a health endpoint are assumed healthy.
func (p *CustomProvider) CheckHealth(ctx context.Context) error {
	endpoint, _ := p.Endpoint()
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s: %w: endpoint %q", p.name, ErrInvalidConfig, endpoint)
	}
	for _, host := range p.healthyHosts {
		if strings.EqualFold(u.Hostname(), host) {
			return nil
		}
	}

	timeout := healthCheckTimeout
	if p.timeout > 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.healthPath != "" {
		healthURL := p.baseURL() + "/" + strings.TrimLeft(p.healthPath, "/")
		status, err := p.probe(ctx, healthURL)
		if err == nil && status >= 200 && status < 300 {
			return nil
		}
		logger.Debug("[%s] health path %s not usable (status=%d, err=%v), probing endpoint", p.name, healthURL, status, err)
	}

	status, err := p.probe(ctx, endpoint)
	if err != nil {
		return &TransportError{Provider: p.name, Endpoint: endpoint, Err: err}
	}
	if status >= 500 {
		return fmt.Errorf("%s: endpoint %s returned %d", p.name, endpoint, status)
	}
	return nil
}

func (p *CustomProvider) probe(ctx context.Context, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (p *CustomProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(p.config.APIKey); key != "" {
		if p.authScheme != "" {
			req.Header.Set(p.authHeader, p.authScheme+" "+key)
		} else {
			req.Header.Set(p.authHeader, key)
		}
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
}

func (p *CustomProvider) newRequest(ctx context.Context, chatReq ChatRequest, stream bool) (*http.Request, string, string, error) {
	endpoint, pathType := p.Endpoint()

	body, err := p.requestTransformer(TransformInput{
		Model:        p.config.Model,
		Messages:     chatReq.Messages,
		SystemPrompt: chatReq.SystemPrompt,
		Stream:       stream,
		Tools:        chatReq.Tools,
		ToolChoice:   chatReq.ToolChoice,
		Debug:        chatReq.Debug,
		Temperature:  p.config.Temperature,
		MaxTokens:    p.config.MaxTokens,
	})
	if err != nil {
		return nil, endpoint, pathType, fmt.Errorf("%s: failed to build request: %w", p.name, err)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, endpoint, pathType, fmt.Errorf("%s: failed to marshal request: %w", p.name, err)
	}
	if chatReq.Debug {
		logger.Debug("[%s] %s %s: %s", p.name, p.method, endpoint, string(jsonData))
	}

	req, err := http.NewRequestWithContext(ctx, p.method, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, endpoint, pathType, fmt.Errorf("%s: failed to create request: %w", p.name, err)
	}
	p.setHeaders(req)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, endpoint, pathType, nil
}

func (p *CustomProvider) waitRateLimit(ctx context.Context, req ChatRequest) error {
	if p.rateLimiter == nil {
		return nil
	}
	if err := p.rateLimiter.Wait(ctx, EstimateRequestTokens(req)); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", p.name, err)
	}
	return nil
}

func (p *CustomProvider) observeHeaders(h http.Header) {
	if p.rateLimiter != nil {
		p.rateLimiter.UpdateFromHeaders(h, p.rateLimitHeaders)
	}
}

func (p *CustomProvider) SendMessage(ctx context.Context, chatReq ChatRequest) (*ChatResponse, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.waitRateLimit(ctx, chatReq); err != nil {
		return nil, err
	}

	req, endpoint, pathType, err := p.newRequest(ctx, chatReq, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: p.name, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Provider: p.name, Endpoint: endpoint, Err: err}
	}
	p.observeHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newUpstreamError(resp.StatusCode, endpoint, p.config.Model, pathType, string(body))
	}

	wire := WireResponse{StatusCode: resp.StatusCode, Body: body}
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		wire.JSON = parsed
	}

	out, err := p.responseTransformer(wire)
	if err != nil {
		if p.fallbackMessage != "" {
			logger.Warn("[%s] could not read response, using fallback message: %v", p.name, err)
			return &ChatResponse{Content: p.fallbackMessage, FinishReason: "error", Raw: body}, nil
		}
		return nil, fmt.Errorf("%s: failed to transform response: %w", p.name, err)
	}
	return out, nil
}

// OpenStream issues a streaming request and returns the chunk sequence.
// The caller must Close the stream.
func (p *CustomProvider) OpenStream(ctx context.Context, chatReq ChatRequest) (*Stream, error) {
	if err := p.waitRateLimit(ctx, chatReq); err != nil {
		return nil, err
	}

	req, endpoint, pathType, err := p.newRequest(ctx, chatReq, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: p.name, Endpoint: endpoint, Err: err}
	}
	p.observeHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		return nil, newUpstreamError(resp.StatusCode, endpoint, p.config.Model, pathType, string(body))
	}

	return NewStream(ctx, p.name, resp.Body, p.streamTransformer, chatReq.OnToolCall, chatReq.Debug), nil
}

func (p *CustomProvider) SendMessageStream(ctx context.Context, chatReq ChatRequest, onChunk func(StreamChunk)) error {
	stream, err := p.OpenStream(ctx, chatReq)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}

func (p *CustomProvider) Metrics() Metrics {
	return p.metrics.get()
}

func (p *CustomProvider) RecordMetrics(latency time.Duration, isError bool) {
	snapshot := p.metrics.record(latency, isError)
	if p.config.Enterprise != nil && p.config.Enterprise.Monitoring.OnMetrics != nil {
		p.config.Enterprise.Monitoring.OnMetrics(p.name, snapshot)
	}
}
