package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "PORT", "CORS_ALLOWED_ORIGINS", "SESSIONS_DIR", "EVALUATION_INTERVAL",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_BASE_URL", "ARK_REGION",
	"ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS", "AI_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "data/sessions", cfg.Storage.SessionsDir)
	assert.Equal(t, 5, cfg.Chat.EvaluationInterval)
	assert.False(t, cfg.AI.Enabled())
	assert.Zero(t, cfg.AI.Timeout)
	assert.Nil(t, cfg.AI.Temperature)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EVALUATION_INTERVAL", "0")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "ep-123")
	t.Setenv("ARK_TEMPERATURE", "0.7")
	t.Setenv("AI_TIMEOUT", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 1, cfg.Chat.EvaluationInterval)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.7, *cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "80 80")
	_, err := Load()
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("ARK_MAX_TOKENS", "many")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadFileOverlay(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`PORT: 9090
SESSIONS_DIR: /var/lib/therapy/sessions
EVALUATION_INTERVAL: 10
CORS_ALLOWED_ORIGINS:
  - https://admin.example
Model: ep-file
ARK_API_KEY: file-key
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SESSIONS_DIR", "/tmp/override")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/tmp/override", cfg.Storage.SessionsDir)
	assert.Equal(t, 10, cfg.Chat.EvaluationInterval)
	assert.Equal(t, []string{"https://admin.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.AI.Enabled())
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}
