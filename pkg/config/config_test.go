package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server_url: https://ingest.example.com
api_key: secret-key
hostname: web-01
watch_paths:
  - path: /var/log/nginx
    pattern: "*.log"
    recursive: true
    enabled: true
fim_paths:
  - path: /etc
    pattern: "*"
    recursive: false
    enabled: true
fim_enabled: true
batch_size: 50
batch_interval_seconds: 2.5
retry_max_attempts: 3
retry_backoff_seconds: 1.0
debug_logging: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://ingest.example.com", cfg.ServerURL)
	assert.Equal(t, "secret-key", cfg.APIKey)
	assert.Equal(t, "web-01", cfg.Hostname)
	assert.Len(t, cfg.WatchPaths, 1)
	assert.Equal(t, "/var/log/nginx", cfg.WatchPaths[0].Path)
	assert.True(t, cfg.FIMEnabled)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.InDelta(t, 2.5, cfg.BatchIntervalSeconds, 0.0001)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.True(t, cfg.IsConfigured())
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "server_url: https://ingest.example.com\napi_key: k\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, defaultBatchIntervalSeconds, cfg.BatchIntervalSeconds)
	assert.Equal(t, defaultRetryMaxAttempts, cfg.RetryMaxAttempts)
	assert.Equal(t, defaultRetryBackoffSeconds, cfg.RetryBackoffSeconds)
	assert.NotEmpty(t, cfg.Hostname)
}

func TestLoad_MissingServerURL(t *testing.T) {
	// A host can be freshly installed and not yet enrolled with a server.
	// Load must still succeed: the tailer and FIM run and fill the buffer,
	// and IsConfigured being false is what tells the shipper to report
	// Error on each attempt instead of refusing to start the agent.
	path := writeConfig(t, "api_key: k\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.IsConfigured())
}

func TestLoad_MissingWatchPath(t *testing.T) {
	path := writeConfig(t, "server_url: https://x\napi_key: k\nwatch_paths:\n  - pattern: \"*.log\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch_paths[0].path is required")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestIsConfigured(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.IsConfigured())

	cfg.ServerURL = "https://x"
	assert.False(t, cfg.IsConfigured())

	cfg.APIKey = "k"
	assert.True(t, cfg.IsConfigured())
}
