package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataDir_UsesXDGCacheHome(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/lognog-cache-test")
	require.Equal(t, filepath.Join("/tmp/lognog-cache-test", agentName), DataDir())
}

func TestConfigDir_UsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/lognog-config-test")
	require.Equal(t, filepath.Join("/tmp/lognog-config-test", agentName), ConfigDir())
}

func TestBufferDBPath_IsUnderDataDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/lognog-cache-test")
	require.Equal(t, filepath.Join(DataDir(), "buffer.db"), BufferDBPath())
}

func TestBaselineDBPath_IsUnderDataDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/lognog-cache-test")
	require.Equal(t, filepath.Join(DataDir(), "baseline.db"), BaselineDBPath())
}

func TestConfigPath_IsUnderConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/lognog-config-test")
	require.Equal(t, filepath.Join(ConfigDir(), "config.yaml"), ConfigPath())
}
