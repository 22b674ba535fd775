package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCmdStatus_NoLockFile(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dataDir)
	require.NoError(t, cmdStatus())
}

func TestCmdStatus_LiveProcess(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dataDir)

	lockDir := filepath.Join(dataDir, "lognog-agent")
	require.NoError(t, os.MkdirAll(lockDir, 0o755))
	lockPath := filepath.Join(lockDir, "lognog-agent.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())), 0o644))

	require.NoError(t, cmdStatus())
}

func TestCmdStatus_StaleLockFile(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dataDir)

	lockDir := filepath.Join(dataDir, "lognog-agent")
	require.NoError(t, os.MkdirAll(lockDir, 0o755))
	lockPath := filepath.Join(lockDir, "lognog-agent.lock")
	// PID 1 is very unlikely to be killable by this test process but a
	// nonexistent high PID is a safer stand-in for "not alive" across
	// sandboxes that run as PID 1 themselves.
	require.NoError(t, os.WriteFile(lockPath, []byte("999999"), 0o644))

	require.NoError(t, cmdStatus())
}
