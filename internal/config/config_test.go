package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHubConfig_HasClassifierTable(t *testing.T) {
	cfg := DefaultHubConfig()
	assert.NotEmpty(t, cfg.Classifier)
	assert.Equal(t, DefaultClassifierTable(), cfg.Classifier)
}

func TestLoadHubConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadHubConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHubConfig(), cfg)
}

func TestLoadHubConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadHubConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHubConfig(), cfg)
}

func TestLoadHubConfig_OverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 9090\nmaxWaitMs: 90000\n"), 0o644))

	cfg, err := LoadHubConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 90000, cfg.MaxWaitMs)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host, "fields absent from the file should keep their default")
}

func TestLoadRuntimeConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HUB_URL", "AGENT_ID", "KEEPALIVE_MODE", "KEEPALIVE_INTERVAL_MS", "WAIT_TIMEOUT_MS", "RECONNECT_MAX_BACKOFF_MS"} {
		t.Setenv(key, "")
	}
	cfg := LoadRuntimeConfigFromEnv()
	assert.Equal(t, KeepaliveOff, cfg.KeepaliveMode)
	assert.Equal(t, 3000, cfg.KeepaliveIntervalMs)
	assert.Equal(t, 20000, cfg.WaitTimeoutMs)
	assert.Equal(t, 16000, cfg.ReconnectMaxBackoffMs)
}

func TestLoadRuntimeConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("HUB_URL", "http://hub.internal:8080")
	t.Setenv("AGENT_ID", "vibe")
	t.Setenv("KEEPALIVE_MODE", "active")
	t.Setenv("KEEPALIVE_INTERVAL_MS", "5000")

	cfg := LoadRuntimeConfigFromEnv()
	assert.Equal(t, "http://hub.internal:8080", cfg.HubURL)
	assert.Equal(t, "vibe", cfg.AgentId)
	assert.Equal(t, KeepaliveActive, cfg.KeepaliveMode)
	assert.Equal(t, 5000, cfg.KeepaliveIntervalMs)
}
