package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Anthropic.Model)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Anthropic.TitleModel)
	assert.Equal(t, "dynamodb", cfg.Storage.Backend)
	assert.Equal(t, "skyplanner_sessions", cfg.Storage.DynamoDB.TableName)
	assert.Equal(t, "Asia/Seoul", cfg.Tools.Timezone)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
anthropic:
  api_key: yaml-key
  model: custom-model
agent:
  max_iterations: 4
storage:
  backend: memory
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "yaml-key", cfg.Anthropic.APIKey)
	assert.Equal(t, "custom-model", cfg.Anthropic.Model)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	// Unset fields keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Anthropic.TitleModel)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
anthropic:
  api_key: yaml-key
`), 0o644))

	t.Setenv("SKYPLANNER_ANTHROPIC_API_KEY", "env-key")
	t.Setenv("SKYPLANNER_SERVER_PORT", "7070")
	t.Setenv("SKYPLANNER_STORAGE_BACKEND", "memory")
	t.Setenv("SKYPLANNER_AGENT_MAX_ITERATIONS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Anthropic.APIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
}

func TestSecretFromFile(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "api_key")
	require.NoError(t, os.WriteFile(secretPath, []byte("file-key\n"), 0o600))

	t.Setenv("SKYPLANNER_ANTHROPIC_API_KEY", "")
	t.Setenv("SKYPLANNER_ANTHROPIC_API_KEY_FILE", secretPath)

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	assert.Equal(t, "file-key", cfg.Anthropic.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Anthropic.APIKey = "key"
		return cfg
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Anthropic.APIKey = ""
	assert.ErrorContains(t, cfg.Validate(), "api_key")

	cfg = valid()
	cfg.Server.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "port")

	cfg = valid()
	cfg.Agent.MaxIterations = 0
	assert.ErrorContains(t, cfg.Validate(), "max_iterations")

	cfg = valid()
	cfg.Storage.Backend = "redis"
	assert.ErrorContains(t, cfg.Validate(), "backend")

	cfg = valid()
	cfg.Storage.Backend = "dynamodb"
	cfg.Storage.DynamoDB.TableName = ""
	assert.ErrorContains(t, cfg.Validate(), "table_name")

	cfg = valid()
	cfg.Storage.Backend = "memory"
	assert.NoError(t, cfg.Validate())
}
