package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mainbong/copilot_kit/internal/filesystem"
)

func TestLoad_DefaultConfig(t *testing.T) {
	mockFS := filesystem.NewMockFileSystem()
	testDir := "/test/config"
	testFile := filepath.Join(testDir, "config.json")

	cfg, err := LoadWithFS(mockFS, testDir, testFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Provider != "anthropic" {
		t.Errorf("Expected Provider 'anthropic', got '%s'", cfg.Provider)
	}
	if cfg.Providers["anthropic"].Model != "claude-haiku-4-5-20251001" {
		t.Errorf("Expected Anthropic model 'claude-haiku-4-5-20251001', got '%s'", cfg.Providers["anthropic"].Model)
	}
	if cfg.Providers["openai"].Model != "gpt-5" {
		t.Errorf("Expected OpenAI model 'gpt-5', got '%s'", cfg.Providers["openai"].Model)
	}
	if cfg.Providers["ollama"].BaseURL != "http://localhost:11434" {
		t.Errorf("Expected Ollama base URL, got '%s'", cfg.Providers["ollama"].BaseURL)
	}
	if !cfg.Failover.Enabled || len(cfg.Failover.FallbackProviders) != 2 {
		t.Errorf("Unexpected failover defaults: %+v", cfg.Failover)
	}
	if cfg.HealthCheckInterval() != 30*time.Second {
		t.Errorf("Expected 30s health check interval, got %v", cfg.HealthCheckInterval())
	}
	if cfg.Tools.Manifest != filepath.Join(testDir, "tools") || !cfg.Tools.Builtins {
		t.Errorf("Unexpected tools defaults: %+v", cfg.Tools)
	}
	if cfg.MaxIterations != 10 {
		t.Errorf("Expected MaxIterations 10, got %d", cfg.MaxIterations)
	}

	// Check that default config was saved
	savedData := mockFS.GetFile(testFile)
	if len(savedData) == 0 {
		t.Error("Expected default config to be saved, but file is empty")
	}
}

func TestLoad_EnvKeysAreNotSaved(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	mockFS := filesystem.NewMockFileSystem()
	testDir := "/test/config"
	testFile := filepath.Join(testDir, "config.json")

	cfg, err := LoadWithFS(mockFS, testDir, testFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Providers["anthropic"].APIKey != "env-anthropic-key" {
		t.Errorf("Expected Anthropic API key from env, got '%s'", cfg.Providers["anthropic"].APIKey)
	}

	if err := cfg.Set("providers.openai.api_key", "typed-key"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SaveWithFS(mockFS, testFile); err != nil {
		t.Fatal(err)
	}

	var saved Config
	if err := json.Unmarshal(mockFS.GetFile(testFile), &saved); err != nil {
		t.Fatalf("Saved config is not valid JSON: %v", err)
	}
	if saved.Providers["anthropic"].APIKey != "" {
		t.Errorf("Env key was written to disk: %q", saved.Providers["anthropic"].APIKey)
	}
	if saved.Providers["openai"].APIKey != "typed-key" {
		t.Errorf("Expected typed key to be saved, got %q", saved.Providers["openai"].APIKey)
	}
	// the in-memory config still carries the env key
	if cfg.Providers["anthropic"].APIKey != "env-anthropic-key" {
		t.Error("Save stripped the in-memory key")
	}
}

func TestLoad_FileKeyWinsOverEnv(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "env-key")
	defer os.Unsetenv("OPENAI_API_KEY")

	mockFS := filesystem.NewMockFileSystem()
	testDir := "/test/config"
	testFile := filepath.Join(testDir, "config.json")
	mockFS.AddDir(testDir, 0755)
	mockFS.AddFile(testFile, []byte(`{"providers":{"openai":{"api_key":"file-key"}}}`), 0600)

	cfg, err := LoadWithFS(mockFS, testDir, testFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers["openai"].APIKey != "file-key" {
		t.Errorf("Expected file key, got %q", cfg.Providers["openai"].APIKey)
	}
}

func TestLoad_ExistingConfig(t *testing.T) {
	mockFS := filesystem.NewMockFileSystem()
	testDir := "/test/config"
	testFile := filepath.Join(testDir, "config.json")

	existing := `{
  "provider": "gateway",
  "providers": {
    "gateway": {
      "model": "gw-large",
      "endpoint": "https://gw.example.com",
      "path_template": "/v2/chat",
      "headers": {"X-Team": "support"},
      "timeout_seconds": 45
    }
  },
  "failover": {"enabled": true, "fallback_providers": ["openai"], "health_check_interval": "1m"},
  "tools": {"manifest": "/custom/tools.yaml", "watch": true},
  "log_dir": "/custom/logs",
  "log_level": "debug"
}`
	mockFS.AddFile(testFile, []byte(existing), 0600)
	mockFS.AddDir(testDir, 0755)

	cfg, err := LoadWithFS(mockFS, testDir, testFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Provider != "gateway" {
		t.Errorf("Expected Provider 'gateway', got '%s'", cfg.Provider)
	}
	if cfg.Tools.Manifest != "/custom/tools.yaml" || !cfg.Tools.Watch {
		t.Errorf("Unexpected tools: %+v", cfg.Tools)
	}
	if cfg.LogLevel != "debug" || cfg.LogDir != "/custom/logs" {
		t.Errorf("Unexpected log settings: %s %s", cfg.LogLevel, cfg.LogDir)
	}
	if got := cfg.CustomProviderNames(); len(got) != 1 || got[0] != "gateway" {
		t.Errorf("CustomProviderNames() = %v", got)
	}

	pc, ok := cfg.ProviderConfig("gateway")
	if !ok {
		t.Fatal("ProviderConfig(gateway) not found")
	}
	if pc.ModelProvider != "gateway" || pc.Model != "gw-large" {
		t.Errorf("Unexpected provider config: %+v", pc)
	}
	if pc.Local == nil || pc.Local.Endpoint != "https://gw.example.com" || pc.Local.PathTemplate != "/v2/chat" {
		t.Fatalf("Unexpected local config: %+v", pc.Local)
	}
	if pc.Local.Timeout != 45*time.Second || pc.Local.Headers["X-Team"] != "support" {
		t.Errorf("Unexpected local config: %+v", pc.Local)
	}
	if pc.Enterprise == nil || pc.Enterprise.Failover.HealthCheckInterval != time.Minute ||
		len(pc.Enterprise.Failover.FallbackProviders) != 1 {
		t.Errorf("Unexpected failover config: %+v", pc.Enterprise)
	}
}

func TestLoad_EmptyLogDirFallsBackToDefault(t *testing.T) {
	mockFS := filesystem.NewMockFileSystem()
	testDir := "/test/config"
	testFile := filepath.Join(testDir, "config.json")

	mockFS.AddFile(testFile, []byte(`{"provider":"anthropic","log_dir":""}`), 0600)
	mockFS.AddDir(testDir, 0755)

	cfg, err := LoadWithFS(mockFS, testDir, testFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.LogDir != filepath.Join(testDir, "logs") {
		t.Errorf("Expected LogDir '%s', got '%s'", filepath.Join(testDir, "logs"), cfg.LogDir)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	mockFS := filesystem.NewMockFileSystem()
	testDir := "/test/config"
	testFile := filepath.Join(testDir, "config.json")

	mockFS.AddFile(testFile, []byte("{ invalid json }"), 0600)
	mockFS.AddDir(testDir, 0755)

	if _, err := LoadWithFS(mockFS, testDir, testFile); err == nil {
		t.Error("Expected error for invalid JSON, got nil")
	}
}

func TestLoad_ReadError(t *testing.T) {
	mockFS := filesystem.NewMockFileSystem()
	testDir := "/test/config"
	testFile := filepath.Join(testDir, "config.json")

	// File exists but read fails
	mockFS.AddDir(testDir, 0755)
	mockFS.AddFile(testFile, []byte("{}"), 0600)
	mockFS.SetReadError(testFile, os.ErrPermission)

	if _, err := LoadWithFS(mockFS, testDir, testFile); err == nil {
		t.Error("Expected error for read failure, got nil")
	}
}

func TestSave_WriteError(t *testing.T) {
	mockFS := filesystem.NewMockFileSystem()
	testFile := "/test/config.json"

	mockFS.SetWriteError(testFile, os.ErrPermission)

	cfg := &Config{}
	if err := cfg.SaveWithFS(mockFS, testFile); err == nil {
		t.Error("Expected error for write failure, got nil")
	}
}

func TestProviderConfig_Builtin(t *testing.T) {
	cfg := Default("/test")

	pc, ok := cfg.ProviderConfig(" OpenAI ")
	if !ok {
		t.Fatal("expected builtin provider")
	}
	if pc.ModelProvider != "openai" || pc.Model != "gpt-5" {
		t.Errorf("Unexpected config: %+v", pc)
	}
	if pc.Local != nil {
		t.Errorf("Expected no local overrides, got %+v", pc.Local)
	}

	// custom is builtin even without stored settings
	if _, ok := cfg.ProviderConfig("custom"); !ok {
		t.Error("custom should resolve")
	}
	if _, ok := cfg.ProviderConfig("nowhere"); ok {
		t.Error("unknown provider should not resolve")
	}
}

func TestSet_ConfigValues(t *testing.T) {
	cfg := Default("/test")

	sets := [][2]string{
		{"provider", "openai"},
		{"providers.openai.model", "gpt-5-mini"},
		{"providers.openai.temperature", "0.2"},
		{"providers.openai.max_tokens", "2048"},
		{"providers.gateway.endpoint", "https://gw.example.com"},
		{"providers.gateway.method", "post"},
		{"providers.gateway.headers.X-Team", "support"},
		{"failover.enabled", "false"},
		{"failover.fallback_providers", "ollama, Gateway"},
		{"failover.health_check_interval", "10s"},
		{"tools.watch", "true"},
		{"tools.builtins", "false"},
		{"tools.timeout", "5s"},
		{"context.business_id", "biz-1"},
		{"max_iterations", "4"},
		{"log_level", "WARN"},
	}
	for _, kv := range sets {
		if err := cfg.Set(kv[0], kv[1]); err != nil {
			t.Fatalf("Set(%s) failed: %v", kv[0], err)
		}
	}

	if cfg.Provider != "openai" {
		t.Errorf("Expected Provider 'openai', got '%s'", cfg.Provider)
	}
	openai := cfg.Providers["openai"]
	if openai.Model != "gpt-5-mini" || openai.Temperature == nil || *openai.Temperature != 0.2 || openai.MaxTokens != 2048 {
		t.Errorf("Unexpected openai settings: %+v", openai)
	}
	gateway := cfg.Providers["gateway"]
	if gateway == nil || gateway.Method != "POST" || gateway.Headers["X-Team"] != "support" {
		t.Errorf("Unexpected gateway settings: %+v", gateway)
	}
	if cfg.Failover.Enabled || len(cfg.Failover.FallbackProviders) != 2 || cfg.Failover.FallbackProviders[1] != "gateway" {
		t.Errorf("Unexpected failover: %+v", cfg.Failover)
	}
	if cfg.HealthCheckInterval() != 10*time.Second || cfg.ToolTimeout() != 5*time.Second {
		t.Errorf("Unexpected durations: %v %v", cfg.HealthCheckInterval(), cfg.ToolTimeout())
	}
	if !cfg.Tools.Watch || cfg.Tools.Builtins {
		t.Errorf("Unexpected tools: %+v", cfg.Tools)
	}
	if cfg.Context.BusinessID != "biz-1" || cfg.MaxIterations != 4 || cfg.LogLevel != "warn" {
		t.Errorf("Unexpected values: %+v", cfg)
	}

	// the gateway provider exists now, so it can become primary
	if err := cfg.Set("provider", "gateway"); err != nil {
		t.Errorf("Set(provider, gateway) failed: %v", err)
	}

	if err := cfg.Set("providers.gateway.headers.X-Team", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := gateway.Headers["X-Team"]; ok {
		t.Error("empty header value should remove the header")
	}
}

func TestSet_InvalidKey(t *testing.T) {
	cfg := &Config{}
	for _, key := range []string{"unknown.key", "providers.openai", "providers.openai.color", "providers.Bad Name.model", "providers.gw.headers"} {
		if err := cfg.Set(key, "value"); err == nil {
			t.Errorf("Set(%q) expected error", key)
		}
	}
}

func TestSet_InvalidValue(t *testing.T) {
	cfg := Default("/test")
	tests := [][2]string{
		{"provider", "invalid"},
		{"failover.enabled", "notabool"},
		{"failover.health_check_interval", "soon"},
		{"failover.fallback_providers", "ok, not ok"},
		{"providers.openai.temperature", "3"},
		{"providers.openai.max_tokens", "-1"},
		{"tools.timeout", "forever"},
		{"max_iterations", "0"},
		{"log_level", "verbose"},
	}
	for _, tt := range tests {
		if err := cfg.Set(tt[0], tt[1]); err == nil {
			t.Errorf("Set(%s, %s) expected error", tt[0], tt[1])
		}
	}
}

func TestGetConfigDir(t *testing.T) {
	if dir := GetConfigDir(); dir == "" {
		t.Error("GetConfigDir() returned empty string")
	}
}

func TestGetConfigFile(t *testing.T) {
	file := GetConfigFile()
	if filepath.Base(file) != "config.json" {
		t.Errorf("GetConfigFile() = %s", file)
	}
}
