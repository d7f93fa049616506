package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Factory constructs a provider from its configuration
type Factory func(cfg ProviderConfig) (Provider, error)

// Registration describes one provider name in a Registry
type Registration struct {
	Name          string
	Factory       Factory
	IsAvailable   func(ctx context.Context) bool
	DefaultConfig *ProviderConfig
}

// Registry maps provider names to factories. Registration is append-only
// and the registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a provider. Names are unique; a second registration fails.
func (r *Registry) Register(reg Registration) error {
	name := normalizeName(reg.Name)
	if name == "" {
		return fmt.Errorf("%w: registration without a name", ErrInvalidConfig)
	}
	if reg.Factory == nil {
		return fmt.Errorf("%w: registration %q has no factory", ErrInvalidConfig, name)
	}
	reg.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.entries[name] = reg
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the registration for name
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[normalizeName(name)]
	return reg, ok
}

// Names returns the registered names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Create builds the provider named by cfg.ModelProvider, with the
// registration's default config filling unset fields.
func (r *Registry) Create(cfg ProviderConfig) (Provider, error) {
	reg, ok := r.Lookup(cfg.ModelProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.ModelProvider)
	}
	merged := cfg
	if reg.DefaultConfig != nil {
		merged = MergeConfig(*reg.DefaultConfig, cfg)
	}
	merged.ModelProvider = reg.Name

	p, err := reg.Factory(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", reg.Name, err)
	}
	return p, nil
}

// Available returns the names whose availability probe passes
func (r *Registry) Available(ctx context.Context) []string {
	var out []string
	for _, name := range r.Names() {
		reg, ok := r.Lookup(name)
		if !ok {
			continue
		}
		if reg.IsAvailable == nil || reg.IsAvailable(ctx) {
			out = append(out, name)
		}
	}
	return out
}

// MergeConfig overlays the set fields of override onto base
func MergeConfig(base, override ProviderConfig) ProviderConfig {
	out := base
	if override.ModelProvider != "" {
		out.ModelProvider = override.ModelProvider
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.MaxTokens != 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.Enterprise != nil {
		out.Enterprise = override.Enterprise
	}

	switch {
	case override.Local == nil:
	case base.Local == nil:
		local := *override.Local
		out.Local = &local
	default:
		local := *base.Local
		o := override.Local
		if o.Endpoint != "" {
			local.Endpoint = o.Endpoint
		}
		if o.PathTemplate != "" {
			local.PathTemplate = o.PathTemplate
		}
		if o.Method != "" {
			local.Method = o.Method
		}
		if o.AuthHeaderName != "" {
			local.AuthHeaderName = o.AuthHeaderName
		}
		if o.HealthPath != "" {
			local.HealthPath = o.HealthPath
		}
		if o.Timeout != 0 {
			local.Timeout = o.Timeout
		}
		if len(o.Headers) > 0 {
			headers := make(map[string]string, len(local.Headers)+len(o.Headers))
			for k, v := range local.Headers {
				headers[k] = v
			}
			for k, v := range o.Headers {
				headers[k] = v
			}
			local.Headers = headers
		}
		out.Local = &local
	}
	return out
}
