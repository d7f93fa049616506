package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mainbong/copilot_kit/internal/filesystem"
	"github.com/mainbong/copilot_kit/internal/llm"
)

// ProviderSettings is the stored configuration of one provider
type ProviderSettings struct {
	APIKey         string            `json:"api_key,omitempty"`
	Model          string            `json:"model,omitempty"`
	BaseURL        string            `json:"base_url,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Endpoint       string            `json:"endpoint,omitempty"`
	PathTemplate   string            `json:"path_template,omitempty"`
	Method         string            `json:"method,omitempty"`
	AuthHeaderName string            `json:"auth_header_name,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	HealthPath     string            `json:"health_path,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// FailoverSettings is the fallback policy applied to the primary provider
type FailoverSettings struct {
	Enabled             bool     `json:"enabled"`
	FallbackProviders   []string `json:"fallback_providers"`
	HealthCheckInterval string   `json:"health_check_interval"` // e.g. "30s"
}

// ToolsSettings controls where tool descriptors come from
type ToolsSettings struct {
	Manifest   string `json:"manifest"` // file or directory of .yaml/.toml/.json manifests
	Watch      bool   `json:"watch"`
	Builtins   bool   `json:"builtins"`
	ServerAddr string `json:"server_addr"`
	Timeout    string `json:"timeout"`
}

// ContextSettings is sent with every remote tool invocation
type ContextSettings struct {
	BusinessID string `json:"business_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// Config holds the application configuration
type Config struct {
	Provider        string                       `json:"provider"`
	Providers       map[string]*ProviderSettings `json:"providers"`
	Failover        FailoverSettings             `json:"failover"`
	Tools           ToolsSettings                `json:"tools"`
	Context         ContextSettings              `json:"context"`
	SystemPrompt    string                       `json:"system_prompt,omitempty"`
	FallbackMessage string                       `json:"fallback_message,omitempty"`
	MaxIterations   int                          `json:"max_iterations"`
	LogDir          string                       `json:"log_dir"`
	LogLevel        string                       `json:"log_level"` // "debug", "info", "warn", "error"

	envKeys map[string]string // provider -> key taken from the environment
}

var (
	configDir  = filepath.Join(os.Getenv("HOME"), ".copilot-kit")
	configFile = filepath.Join(configDir, "config.json")
	defaultFS  = filesystem.NewOSFileSystem()
)

// builtinProviders are always known, whether configured or not
var builtinProviders = []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama, llm.ProviderCustom}

// Default returns the configuration written on first run
func Default(dir string) *Config {
	return &Config{
		Provider: llm.ProviderAnthropic,
		Providers: map[string]*ProviderSettings{
			llm.ProviderAnthropic: {Model: llm.DefaultAnthropicModel},
			llm.ProviderOpenAI:    {Model: llm.DefaultOpenAIModel},
			llm.ProviderOllama:    {Model: llm.DefaultOllamaModel, BaseURL: "http://localhost:11434"},
		},
		Failover: FailoverSettings{
			Enabled:             true,
			FallbackProviders:   []string{llm.ProviderOpenAI, llm.ProviderOllama},
			HealthCheckInterval: "30s",
		},
		Tools: ToolsSettings{
			Manifest:   filepath.Join(dir, "tools"),
			Builtins:   true,
			ServerAddr: "127.0.0.1:8787",
			Timeout:    "60s",
		},
		MaxIterations: 10,
		LogDir:        filepath.Join(dir, "logs"),
		LogLevel:      "info",
	}
}

// Load loads the configuration from file or creates a default one
func Load() (*Config, error) {
	return LoadWithFS(defaultFS, configDir, configFile)
}

// LoadWithFS loads the configuration using a custom FileSystem (for testing)
func LoadWithFS(fs filesystem.FileSystem, dir, file string) (*Config, error) {
	// Create config directory if it doesn't exist
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := Default(dir)

	// Try to load from file
	if _, err := fs.Stat(file); err == nil {
		data, err := fs.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := cfg.SaveWithFS(fs, file); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderSettings)
	}
	cfg.loadAPIKeysFromEnv()

	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = filepath.Join(dir, "logs")
	}
	if err := fs.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log_dir directory: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to file
func (c *Config) Save() error {
	return c.SaveWithFS(defaultFS, configFile)
}

// SaveWithFS saves the configuration using a custom FileSystem (for testing)
func (c *Config) SaveWithFS(fs filesystem.FileSystem, file string) error {
	data, err := json.MarshalIndent(c.persisted(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(file)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := fs.WriteFile(file, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// persisted returns c without the API keys that came from the environment
func (c *Config) persisted() *Config {
	if len(c.envKeys) == 0 {
		return c
	}
	out := *c
	out.Providers = make(map[string]*ProviderSettings, len(c.Providers))
	for name, ps := range c.Providers {
		if ps != nil && c.envKeys[name] != "" && ps.APIKey == c.envKeys[name] {
			stripped := *ps
			stripped.APIKey = ""
			ps = &stripped
		}
		out.Providers[name] = ps
	}
	return &out
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

// GetConfigFile returns the configuration file path
func GetConfigFile() string {
	return configFile
}

// loadAPIKeysFromEnv fills missing keys from the environment. Keys taken
// from the environment are not written back to the file.
func (c *Config) loadAPIKeysFromEnv() {
	for name, env := range map[string]string{
		llm.ProviderAnthropic: llm.AnthropicAPIKeyEnv,
		llm.ProviderOpenAI:    llm.OpenAIAPIKeyEnv,
	} {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		ps := c.settings(name)
		if ps.APIKey == "" {
			ps.APIKey = key
			if c.envKeys == nil {
				c.envKeys = make(map[string]string)
			}
			c.envKeys[name] = key
		}
	}
}

func (c *Config) settings(name string) *ProviderSettings {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderSettings)
	}
	ps, ok := c.Providers[name]
	if !ok || ps == nil {
		ps = &ProviderSettings{}
		c.Providers[name] = ps
	}
	return ps
}

// IsBuiltin reports whether name is one of the preset providers
func IsBuiltin(name string) bool {
	for _, b := range builtinProviders {
		if b == name {
			return true
		}
	}
	return false
}

// ProviderNames returns the builtin names followed by the other configured
// providers in lexical order
func (c *Config) ProviderNames() []string {
	names := append([]string(nil), builtinProviders...)
	var extra []string
	for name := range c.Providers {
		if !IsBuiltin(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// CustomProviderNames returns configured providers that are not presets
func (c *Config) CustomProviderNames() []string {
	return c.ProviderNames()[len(builtinProviders):]
}

// HealthCheckInterval parses the failover interval, 0 when unset
func (c *Config) HealthCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Failover.HealthCheckInterval)
	if err != nil {
		return 0
	}
	return d
}

// ToolTimeout parses the tool timeout, 0 when unset
func (c *Config) ToolTimeout() time.Duration {
	d, err := time.ParseDuration(c.Tools.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// FailoverPolicy converts the failover settings
func (c *Config) FailoverPolicy() llm.FailoverConfig {
	return llm.FailoverConfig{
		Enabled:             c.Failover.Enabled,
		FallbackProviders:   append([]string(nil), c.Failover.FallbackProviders...),
		HealthCheckInterval: c.HealthCheckInterval(),
	}
}

// ProviderConfig converts the stored settings of name. Unset fields are
// left empty so registry defaults apply.
func (c *Config) ProviderConfig(name string) (llm.ProviderConfig, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	ps, ok := c.Providers[name]
	if !ok && !IsBuiltin(name) {
		return llm.ProviderConfig{}, false
	}
	if ps == nil {
		ps = &ProviderSettings{}
	}

	cfg := llm.ProviderConfig{
		ModelProvider: name,
		Model:         ps.Model,
		APIKey:        ps.APIKey,
		BaseURL:       ps.BaseURL,
		Temperature:   ps.Temperature,
		MaxTokens:     ps.MaxTokens,
		Enterprise:    &llm.EnterpriseConfig{Failover: c.FailoverPolicy()},
	}
	if ps.Endpoint != "" || ps.PathTemplate != "" || ps.Method != "" || ps.AuthHeaderName != "" ||
		len(ps.Headers) > 0 || ps.HealthPath != "" || ps.TimeoutSeconds > 0 {
		cfg.Local = &llm.LocalConfig{
			Endpoint:       ps.Endpoint,
			PathTemplate:   ps.PathTemplate,
			Method:         ps.Method,
			AuthHeaderName: ps.AuthHeaderName,
			Headers:        ps.Headers,
			HealthPath:     ps.HealthPath,
			Timeout:        time.Duration(ps.TimeoutSeconds) * time.Second,
		}
	}
	return cfg, true
}

func validProviderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// Set updates a config value by key.
func (c *Config) Set(key, value string) error {
	raw := strings.TrimSpace(key)
	key = strings.ToLower(raw)

	if strings.HasPrefix(key, "providers.") {
		// header names keep their case
		return c.setProvider(raw[len("providers."):], value)
	}

	switch key {
	case "provider":
		name := strings.ToLower(strings.TrimSpace(value))
		if !IsBuiltin(name) {
			if _, ok := c.Providers[name]; !ok {
				return fmt.Errorf("invalid provider: %s", value)
			}
		}
		c.Provider = name
	case "failover.enabled":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid failover.enabled: %s", value)
		}
		c.Failover.Enabled = parsed
	case "failover.fallback_providers":
		var names []string
		for _, part := range strings.Split(value, ",") {
			if name := strings.ToLower(strings.TrimSpace(part)); name != "" {
				if !validProviderName(name) {
					return fmt.Errorf("invalid provider name in failover.fallback_providers: %s", part)
				}
				names = append(names, name)
			}
		}
		c.Failover.FallbackProviders = names
	case "failover.health_check_interval":
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("invalid failover.health_check_interval: %s", value)
		}
		c.Failover.HealthCheckInterval = value
	case "tools.manifest":
		c.Tools.Manifest = value
	case "tools.watch", "tools.builtins":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %s", key, value)
		}
		if key == "tools.watch" {
			c.Tools.Watch = parsed
		} else {
			c.Tools.Builtins = parsed
		}
	case "tools.server_addr":
		c.Tools.ServerAddr = value
	case "tools.timeout":
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return fmt.Errorf("invalid tools.timeout: %s", value)
		}
		c.Tools.Timeout = value
	case "context.business_id":
		c.Context.BusinessID = value
	case "context.user_id":
		c.Context.UserID = value
	case "system_prompt":
		c.SystemPrompt = value
	case "fallback_message":
		c.FallbackMessage = value
	case "max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid max_iterations: %s", value)
		}
		c.MaxIterations = n
	case "log_dir":
		c.LogDir = value
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(value)
		default:
			return fmt.Errorf("invalid log_level: %s", value)
		}
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	return nil
}

// setProvider handles providers.<name>.<field>[.<header>]
func (c *Config) setProvider(rest, value string) error {
	parts := strings.SplitN(rest, ".", 3)
	if len(parts) < 2 {
		return fmt.Errorf("unknown config key: providers.%s", rest)
	}
	parts[0], parts[1] = strings.ToLower(parts[0]), strings.ToLower(parts[1])
	if !validProviderName(parts[0]) {
		return fmt.Errorf("invalid provider name: %s", parts[0])
	}

	_, existed := c.Providers[parts[0]]
	ps := c.settings(parts[0])
	if err := setProviderField(ps, parts, value); err != nil {
		if !existed {
			delete(c.Providers, parts[0])
		}
		return err
	}
	return nil
}

func setProviderField(ps *ProviderSettings, parts []string, value string) error {

	switch parts[1] {
	case "api_key":
		ps.APIKey = value
	case "model":
		ps.Model = value
	case "base_url":
		ps.BaseURL = value
	case "endpoint":
		ps.Endpoint = value
	case "path_template":
		ps.PathTemplate = value
	case "method":
		ps.Method = strings.ToUpper(value)
	case "auth_header_name":
		ps.AuthHeaderName = value
	case "health_path":
		ps.HealthPath = value
	case "temperature":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil || t < 0 || t > 2 {
			return fmt.Errorf("invalid temperature: %s", value)
		}
		ps.Temperature = &t
	case "max_tokens", "timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s: %s", parts[1], value)
		}
		if parts[1] == "max_tokens" {
			ps.MaxTokens = n
		} else {
			ps.TimeoutSeconds = n
		}
	case "headers":
		if len(parts) != 3 || parts[2] == "" {
			return fmt.Errorf("header name required: providers.%s.headers.<name>", parts[0])
		}
		if ps.Headers == nil {
			ps.Headers = make(map[string]string)
		}
		if value == "" {
			delete(ps.Headers, parts[2])
		} else {
			ps.Headers[parts[2]] = value
		}
	default:
		return fmt.Errorf("unknown config key: providers.%s", strings.Join(parts, "."))
	}
	return nil
}
