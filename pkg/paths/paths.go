// Package paths resolves the per-user directories the agent stores its
// state and configuration under, following the same os.UserConfigDir
// pattern shahar-caura-forge uses for its global env file, with a
// $HOME-based fallback for environments where it is unset.
package paths

import (
	"os"
	"path/filepath"
)

const agentName = "lognog-agent"

// DataDir returns the per-user directory holding buffer.db, baseline.db,
// and the single-instance lock file.
func DataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, agentName)
	}
	return filepath.Join(os.Getenv("HOME"), ".cache", agentName)
}

// ConfigDir returns the per-user directory holding config.yaml.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, agentName)
	}
	return filepath.Join(os.Getenv("HOME"), ".config", agentName)
}

// BufferDBPath is the durable event buffer's on-disk path.
func BufferDBPath() string { return filepath.Join(DataDir(), "buffer.db") }

// BaselineDBPath is the FIM baseline store's on-disk path.
func BaselineDBPath() string { return filepath.Join(DataDir(), "baseline.db") }

// ConfigPath is the agent configuration file's on-disk path.
func ConfigPath() string { return filepath.Join(ConfigDir(), "config.yaml") }
