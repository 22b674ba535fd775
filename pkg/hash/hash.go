// Package hash computes streaming SHA-256 digests of file contents for the
// file integrity monitor's baseline store.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const chunkSize = 64 * 1024

// FileSHA256 returns the "sha256:<hex>" digest of the file at path,
// reading it in fixed-size chunks so arbitrarily large files never need to
// be held in memory at once. Open and read failures are returned as plain
// errors — the caller decides whether a missing or unreadable file is
// fatal.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
