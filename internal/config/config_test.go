package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, "sqlite", cfg.Database.Kind)
	require.Equal(t, "local", cfg.Sandbox.Mode)
}

func TestLoadJSON5Settings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments are allowed
		port: 9001,
		workspace_root: "/srv/work",
		models: {
			"fast": { api_type: "openai", model: "gpt-test", max_retries: 2 },
		},
		default_model: "fast",
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Port)
	require.Equal(t, "/srv/work", cfg.WorkspaceRoot)

	name, spec, err := cfg.ResolveModel("")
	require.NoError(t, err)
	require.Equal(t, "fast", name)
	require.Equal(t, "gpt-test", spec.Model)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTD_PORT", "7777")
	t.Setenv("AGENTD_HOST", "10.0.0.5")
	t.Setenv("AGENTD_SANDBOX_MODE", "docker")
	t.Setenv("AGENTD_ANTHROPIC_API_KEY", "sk-ant-test-value-123")
	t.Setenv("AGENTD_POSTGRES_DSN", "postgres://u:p@localhost/agentd")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.Port)
	require.Equal(t, "10.0.0.5", cfg.Host)
	require.Equal(t, "docker", cfg.Sandbox.Mode)
	require.Equal(t, "sk-ant-test-value-123", cfg.AnthropicAPIKey)

	// A Postgres DSN in the environment switches the store backend.
	require.Equal(t, "postgres", cfg.Database.Kind)
	require.Equal(t, "postgres://u:p@localhost/agentd", cfg.Database.PostgresDSN)
}

func TestSecretsNeverSerialized(t *testing.T) {
	cfg := Default()
	cfg.AnthropicAPIKey = "sk-ant-secret"
	cfg.OpenAIAPIKey = "sk-oai-secret"
	cfg.GeminiAPIKey = "gm-secret"
	cfg.Database.PostgresDSN = "postgres://u:hunter2@db/agentd"

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NotContains(t, string(data), "secret")
	require.NotContains(t, string(data), "hunter2")
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.AnthropicAPIKey = "sk-ant-secret"
	cfg.Database.PostgresDSN = "postgres://u:p@db/agentd"

	masked := cfg.MaskedCopy()
	require.Equal(t, "***", masked.AnthropicAPIKey)
	require.Equal(t, "***", masked.Database.PostgresDSN)
	require.Empty(t, masked.OpenAIAPIKey, "unset secrets stay empty")
	require.Equal(t, cfg.Port, masked.Port)

	// The original is untouched.
	require.Equal(t, "sk-ant-secret", cfg.AnthropicAPIKey)
}

func TestResolveModelUnknown(t *testing.T) {
	cfg := Default()
	_, _, err := cfg.ResolveModel("does-not-exist")
	require.Error(t, err)
}

func TestAPIKeyFor(t *testing.T) {
	cfg := Default()
	cfg.AnthropicAPIKey = "ant"
	cfg.OpenAIAPIKey = "oai"
	cfg.GeminiAPIKey = "gem"

	tests := []struct {
		apiType string
		want    string
	}{
		{"anthropic", "ant"},
		{"openai", "oai"},
		{"gemini", "gem"},
		{"", "ant"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, cfg.APIKeyFor(ModelSpec{APIType: tt.apiType}), tt.apiType)
	}
}

func TestReplaceFromKeepsSecretsAfterReapply(t *testing.T) {
	t.Setenv("AGENTD_OPENAI_API_KEY", "sk-from-env")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	require.Equal(t, "sk-from-env", cfg.OpenAIAPIKey)

	incoming := Default()
	incoming.Port = 9999
	cfg.ReplaceFrom(incoming)
	require.Equal(t, 9999, cfg.Port)
	require.Empty(t, cfg.OpenAIAPIKey)

	cfg.ApplyEnvOverrides()
	require.Equal(t, "sk-from-env", cfg.OpenAIAPIKey)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, home+"/x", ExpandHome("~/x"))
	require.Equal(t, home, ExpandHome("~"))
	require.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	require.Equal(t, "", ExpandHome(""))
}
