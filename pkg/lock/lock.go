// Package lock provides a single-instance advisory file lock so only one
// agent process runs against a given data directory at a time. It replaces
// the original implementation's separate fcntl/msvcrt branches with a
// single cross-platform flock call.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// InstanceLock guards one data directory against concurrent agent
// processes.
type InstanceLock struct {
	path string
	fl   *flock.Flock
}

// New returns an InstanceLock backed by "<name>.lock" inside dir. dir is
// created if it does not already exist.
func New(dir, name string) (*InstanceLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, name+".lock")
	return &InstanceLock{path: path, fl: flock.New(path)}, nil
}

// Acquire attempts a non-blocking exclusive lock, writing the current PID
// into the lock file on success. It returns ok=false (no error) if another
// instance already holds the lock.
func (l *InstanceLock) Acquire() (ok bool, err error) {
	locked, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return false, nil
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = l.fl.Unlock()
		return false, fmt.Errorf("write lock file: %w", err)
	}
	return true, nil
}

// Release unlocks and removes the lock file. Safe to call even if Acquire
// was never called or failed.
func (l *InstanceLock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release instance lock: %w", err)
	}
	_ = os.Remove(l.path)
	return nil
}
