package lock

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstanceLock_AcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, "lognog-in")
	require.NoError(t, err)

	ok, err := l.Acquire()
	require.NoError(t, err)
	require.True(t, ok)

	data, err := os.ReadFile(l.path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Release())

	_, err = os.Stat(l.path)
	require.True(t, os.IsNotExist(err))
}

func TestInstanceLock_SecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, "lognog-in")
	require.NoError(t, err)
	ok, err := first.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = first.Release() }()

	second, err := New(dir, "lognog-in")
	require.NoError(t, err)
	ok, err = second.Acquire()
	require.NoError(t, err)
	require.False(t, ok)
}
