package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Config is the root configuration for the agentd server.
type Config struct {
	Host          string              `json:"host"`
	Port          int                 `json:"port"`
	WorkspaceRoot string              `json:"workspace_root"`
	FileStore     FileStoreConfig     `json:"file_store"`
	Database      DatabaseConfig      `json:"database"`
	Sandbox       SandboxConfig       `json:"sandbox"`
	Models        map[string]ModelSpec `json:"models,omitempty"`
	DefaultModel  string              `json:"default_model,omitempty"`

	TokenBudget     int `json:"token_budget"`
	MaxTurns        int `json:"max_turns"`
	MaxOutputTokens int `json:"max_output_tokens"`

	Proxy     ProxyConfig     `json:"proxy"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`

	// RateLimitRPM throttles new websocket connections per remote address.
	RateLimitRPM int `json:"rate_limit_rpm,omitempty"`

	// IgnoreIndentation makes the file editor match str_replace edits
	// line-wise with leading whitespace stripped, re-indenting the
	// replacement to the first matched line.
	IgnoreIndentation bool `json:"ignore_indentation_for_str_replace,omitempty"`

	// API keys come from env only (AGENTD_*_API_KEY), never from the file.
	AnthropicAPIKey string `json:"-"`
	OpenAIAPIKey    string `json:"-"`
	GeminiAPIKey    string `json:"-"`

	mu sync.RWMutex
}

// ModelSpec describes one entry in the model registry. The name the
// client sends in init_agent selects the spec; api_type picks the
// provider wire format.
type ModelSpec struct {
	APIType        string `json:"api_type"` // "anthropic", "openai", "gemini"
	Model          string `json:"model"`
	BaseURL        string `json:"base_url,omitempty"`
	ThinkingTokens int    `json:"thinking_tokens,omitempty"`
	MaxRetries     int    `json:"max_retries,omitempty"`
}

// FileStoreConfig selects where history snapshots are written.
type FileStoreConfig struct {
	Kind string `json:"kind"` // "local" or "memory"
	Root string `json:"root,omitempty"`
}

// DatabaseConfig selects the session/event store backend.
// PostgresDSN is never read from the settings file, only from env
// AGENTD_POSTGRES_DSN; when set it takes precedence over sqlite.
type DatabaseConfig struct {
	Kind        string `json:"kind,omitempty"` // "sqlite" (default) or "postgres"
	Path        string `json:"path,omitempty"` // sqlite file path
	PostgresDSN string `json:"-"`
}

// SandboxConfig configures how per-session sandboxes are provisioned.
type SandboxConfig struct {
	Mode        string  `json:"mode"` // "local", "docker", "remote"
	ServicePort int     `json:"service_port,omitempty"`
	Image       string  `json:"image,omitempty"`
	MemoryLimit string  `json:"memory_limit,omitempty"`
	CPUs        float64 `json:"cpus,omitempty"`
	NetworkName string  `json:"network_name,omitempty"`
	BaseDomain  string  `json:"base_domain,omitempty"`
	VMAPIURL    string  `json:"vm_api_url,omitempty"`
}

// ProxyConfig configures the sandbox reverse proxy process.
type ProxyConfig struct {
	Port int `json:"port,omitempty"`
}

// TelemetryConfig configures OTLP trace export. Disabled unless an
// endpoint is configured.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the settings watcher on reload.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Host = src.Host
	c.Port = src.Port
	c.WorkspaceRoot = src.WorkspaceRoot
	c.FileStore = src.FileStore
	c.Database = src.Database
	c.Sandbox = src.Sandbox
	c.Models = src.Models
	c.DefaultModel = src.DefaultModel
	c.TokenBudget = src.TokenBudget
	c.MaxTurns = src.MaxTurns
	c.MaxOutputTokens = src.MaxOutputTokens
	c.Proxy = src.Proxy
	c.Telemetry = src.Telemetry
	c.RateLimitRPM = src.RateLimitRPM
	c.IgnoreIndentation = src.IgnoreIndentation
	c.AnthropicAPIKey = src.AnthropicAPIKey
	c.OpenAIAPIKey = src.OpenAIAPIKey
	c.GeminiAPIKey = src.GeminiAPIKey
}

// ResolveModel returns the spec for a model name, falling back to the
// configured default when name is empty.
func (c *Config) ResolveModel(name string) (string, ModelSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == "" {
		name = c.DefaultModel
	}
	spec, ok := c.Models[name]
	if !ok {
		return "", ModelSpec{}, fmt.Errorf("unknown model %q", name)
	}
	return name, spec, nil
}

// APIKeyFor returns the provider API key for a model spec.
func (c *Config) APIKeyFor(spec ModelSpec) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch spec.APIType {
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with secret fields masked.
// Anything echoed to a client or log goes through this.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	// Secrets carry json:"-" and do not survive the round trip; copy
	// them back so set keys show up masked rather than absent.
	cp.AnthropicAPIKey = c.AnthropicAPIKey
	cp.OpenAIAPIKey = c.OpenAIAPIKey
	cp.GeminiAPIKey = c.GeminiAPIKey
	cp.Database.PostgresDSN = c.Database.PostgresDSN

	maskNonEmpty(&cp.AnthropicAPIKey)
	maskNonEmpty(&cp.OpenAIAPIKey)
	maskNonEmpty(&cp.GeminiAPIKey)
	maskNonEmpty(&cp.Database.PostgresDSN)
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}
