package fim

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"
)

// statMetadata returns (owner, permissions) from a native stat call, or
// ("", "") if the file no longer exists.
func statMetadata(path string) (owner, permissions string) {
	info, err := os.Stat(path)
	if err != nil {
		return "", ""
	}
	permissions = fmt.Sprintf("%#o", info.Mode().Perm())
	if sysStat, ok := info.Sys().(*syscall.Stat_t); ok {
		owner = strconv.FormatUint(uint64(sysStat.Uid), 10)
	}
	return owner, permissions
}

// sizeMTimeCTime returns the file's size, mtime, and ctime for a
// record's Metadata, or nil if the file no longer exists — a deleted
// file has no live stat to report these from. ctime comes from the
// native stat's Ctim, which os.FileInfo does not expose.
func sizeMTimeCTime(path string) map[string]interface{} {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	out := map[string]interface{}{
		"size":  info.Size(),
		"mtime": info.ModTime().UTC().Format(time.RFC3339Nano),
	}
	if sysStat, ok := info.Sys().(*syscall.Stat_t); ok {
		out["ctime"] = time.Unix(sysStat.Ctim.Sec, sysStat.Ctim.Nsec).UTC().Format(time.RFC3339Nano)
	}
	return out
}

// fileMetadata captures the baseline-store metadata recorded alongside a
// hash: owner and permissions at the time of hashing.
func fileMetadata(path string) map[string]string {
	owner, permissions := statMetadata(path)
	return map[string]string{
		"owner":       owner,
		"permissions": permissions,
	}
}
