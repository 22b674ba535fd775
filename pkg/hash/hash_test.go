package hash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSHA256_KnownContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	digest, err := FileSHA256(path)
	require.NoError(t, err)
	require.Equal(t, "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", digest)
}

func TestFileSHA256_MissingFile(t *testing.T) {
	_, err := FileSHA256(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestFileSHA256_LargeFileChunked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")

	f, err := os.Create(path)
	require.NoError(t, err)
	chunk := make([]byte, chunkSize)
	for i := 0; i < 3; i++ {
		_, err := f.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	digest, err := FileSHA256(path)
	require.NoError(t, err)
	require.Contains(t, digest, "sha256:")
}
