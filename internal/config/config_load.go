package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          8000,
		WorkspaceRoot: "~/.agentd/workspace",
		FileStore: FileStoreConfig{
			Kind: "local",
			Root: "~/.agentd/filestore",
		},
		Database: DatabaseConfig{
			Kind: "sqlite",
			Path: "~/.agentd/agentd.db",
		},
		Sandbox: SandboxConfig{
			Mode:        "local",
			ServicePort: 17300,
			Image:       "agentd-sandbox:latest",
			MemoryLimit: "2g",
			CPUs:        2,
			NetworkName: "agentd-network",
			BaseDomain:  "agentd.local",
		},
		Models: map[string]ModelSpec{
			"claude-sonnet": {APIType: "anthropic", Model: "claude-sonnet-4-5-20250929", MaxRetries: 3},
		},
		DefaultModel:    "claude-sonnet",
		TokenBudget:     120000,
		MaxTurns:        200,
		MaxOutputTokens: 32768,
		Proxy:           ProxyConfig{Port: 8100},
		RateLimitRPM:    20,
	}
}

// Load reads the settings file (JSON5), then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("AGENTD_ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	envStr("AGENTD_OPENAI_API_KEY", &c.OpenAIAPIKey)
	envStr("AGENTD_GEMINI_API_KEY", &c.GeminiAPIKey)
	envStr("AGENTD_POSTGRES_DSN", &c.Database.PostgresDSN)
	if c.Database.PostgresDSN != "" {
		c.Database.Kind = "postgres"
	}

	envStr("AGENTD_HOST", &c.Host)
	if v := os.Getenv("AGENTD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Port = port
		}
	}
	envStr("AGENTD_WORKSPACE_ROOT", &c.WorkspaceRoot)
	envStr("AGENTD_DEFAULT_MODEL", &c.DefaultModel)

	envStr("AGENTD_SANDBOX_MODE", &c.Sandbox.Mode)
	envStr("AGENTD_SANDBOX_IMAGE", &c.Sandbox.Image)
	envStr("AGENTD_SANDBOX_VM_API_URL", &c.Sandbox.VMAPIURL)
	if v := os.Getenv("AGENTD_PROXY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Proxy.Port = port
		}
	}

	envStr("AGENTD_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENTD_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AGENTD_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AGENTD_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// ApplyEnvOverrides re-applies environment variable overrides.
// Call after replacing config contents to restore runtime secrets.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
