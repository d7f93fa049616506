package llm

import (
	"context"
	"os"

	"github.com/mainbong/copilot_kit/internal/httpclient"
)

// Built-in provider names
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderCustom    = "custom"
)

const (
	OpenAIAPIKeyEnv    = "OPENAI_API_KEY"
	AnthropicAPIKeyEnv = "ANTHROPIC_API_KEY"

	DefaultOpenAIModel    = "gpt-5"
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultOllamaModel    = "llama3.1"
)

// OpenAIOptions configures the chat-completions API
func OpenAIOptions(cfg ProviderConfig, client httpclient.HTTPClient) CustomProviderOptions {
	return CustomProviderOptions{
		Name:   ProviderOpenAI,
		Config: cfg,
		Capabilities: Capabilities{
			SupportsStreaming:  true,
			MaxContextLength:   128000,
			SupportsFunctions:  true,
			SupportsEmbeddings: true,
			SupportsBatching:   true,
		},
		Client:      client,
		RateLimiter: NewDefaultRateLimiter(ProviderOpenAI),
		RateLimitHeaders: RateLimitHeaders{
			Tokens:   "x-ratelimit-limit-tokens",
			Requests: "x-ratelimit-limit-requests",
		},
		RequireModel: true,
	}
}

// AnthropicOptions configures the Messages API
func AnthropicOptions(cfg ProviderConfig, client httpclient.HTTPClient) CustomProviderOptions {
	return CustomProviderOptions{
		Name:           ProviderAnthropic,
		Config:         cfg,
		PathTemplate:   "/v1/messages",
		AuthHeaderName: "x-api-key",
		Headers:        map[string]string{"anthropic-version": AnthropicAPIVersion},
		Capabilities: Capabilities{
			SupportsStreaming: true,
			MaxContextLength:  200000,
			SupportsFunctions: true,
			SupportsBatching:  true,
		},
		RequestTransformer:  AnthropicRequestTransformer,
		ResponseTransformer: AnthropicResponseTransformer,
		StreamTransformer:   AnthropicStreamTransformer,
		Client:              client,
		RateLimiter:         NewDefaultRateLimiter(ProviderAnthropic),
		RateLimitHeaders: RateLimitHeaders{
			Tokens:   "anthropic-ratelimit-input-tokens-limit",
			Requests: "anthropic-ratelimit-requests-limit",
		},
		RequireModel: true,
	}
}

// OllamaOptions configures a local Ollama server through its OpenAI-compatible API
func OllamaOptions(cfg ProviderConfig, client httpclient.HTTPClient) CustomProviderOptions {
	return CustomProviderOptions{
		Name:       ProviderOllama,
		Config:     cfg,
		HealthPath: "/api/version",
		Capabilities: Capabilities{
			SupportsStreaming: true,
			MaxContextLength:  8192,
			SupportsFunctions: true,
		},
		Client:         client,
		AllowAnonymous: true,
		RequireModel:   true,
	}
}

// CustomOptions configures an arbitrary OpenAI-compatible endpoint
func CustomOptions(cfg ProviderConfig, client httpclient.HTTPClient) CustomProviderOptions {
	return CustomProviderOptions{
		Name:   ProviderCustom,
		Config: cfg,
		Capabilities: Capabilities{
			SupportsStreaming: true,
			MaxContextLength:  8192,
			SupportsFunctions: true,
		},
		Client:          client,
		FallbackMessage: "Sorry, the assistant returned a response that could not be read.",
		AllowAnonymous:  true,
	}
}

func presetFactory(build func(ProviderConfig, httpclient.HTTPClient) CustomProviderOptions, client httpclient.HTTPClient) Factory {
	return func(cfg ProviderConfig) (Provider, error) {
		p := NewCustomProvider(build(cfg, client))
		if err := p.ValidateConfig(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func envSet(key string) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		return os.Getenv(key) != ""
	}
}

// RegisterBuiltins registers the openai, anthropic, ollama and custom presets
func RegisterBuiltins(reg *Registry, client httpclient.HTTPClient) error {
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}

	builtins := []Registration{
		{
			Name:        ProviderOpenAI,
			Factory:     presetFactory(OpenAIOptions, client),
			IsAvailable: envSet(OpenAIAPIKeyEnv),
			DefaultConfig: &ProviderConfig{
				ModelProvider: ProviderOpenAI,
				Model:         DefaultOpenAIModel,
				APIKey:        os.Getenv(OpenAIAPIKeyEnv),
				BaseURL:       "https://api.openai.com",
			},
		},
		{
			Name:        ProviderAnthropic,
			Factory:     presetFactory(AnthropicOptions, client),
			IsAvailable: envSet(AnthropicAPIKeyEnv),
			DefaultConfig: &ProviderConfig{
				ModelProvider: ProviderAnthropic,
				Model:         DefaultAnthropicModel,
				APIKey:        os.Getenv(AnthropicAPIKeyEnv),
				BaseURL:       "https://api.anthropic.com",
			},
		},
		{
			Name:    ProviderOllama,
			Factory: presetFactory(OllamaOptions, client),
			IsAvailable: func(ctx context.Context) bool {
				return NewCustomProvider(OllamaOptions(ProviderConfig{
					Model:   DefaultOllamaModel,
					BaseURL: "http://localhost:11434",
				}, client)).CheckHealth(ctx) == nil
			},
			DefaultConfig: &ProviderConfig{
				ModelProvider: ProviderOllama,
				Model:         DefaultOllamaModel,
				BaseURL:       "http://localhost:11434",
			},
		},
		{
			Name:        ProviderCustom,
			Factory:     presetFactory(CustomOptions, client),
			IsAvailable: func(ctx context.Context) bool { return true },
		},
	}

	for _, b := range builtins {
		if err := reg.Register(b); err != nil {
			return err
		}
	}
	return nil
}

// RegisterCustom registers another OpenAI-compatible endpoint under its own name
func RegisterCustom(reg *Registry, name string, client httpclient.HTTPClient) error {
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}
	named := func(cfg ProviderConfig, c httpclient.HTTPClient) CustomProviderOptions {
		opts := CustomOptions(cfg, c)
		opts.Name = normalizeName(name)
		return opts
	}
	return reg.Register(Registration{
		Name:        name,
		Factory:     presetFactory(named, client),
		IsAvailable: func(ctx context.Context) bool { return true },
	})
}
