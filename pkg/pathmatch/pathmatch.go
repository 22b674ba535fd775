// Package pathmatch implements the case-sensitive basename glob matching
// shared by the tailer and the file integrity monitor: patterns like
// "*.log" or "app*.log" match only the file's base name, never its
// directory components.
package pathmatch

import "path/filepath"

// Matches reports whether the base name of path matches pattern. An empty
// pattern matches every base name. path/filepath.Match already treats "/"
// as non-special within a single path element, which is exactly the
// semantics needed here since only the base name is ever passed in.
func Matches(pattern, path string) bool {
	if pattern == "" {
		return true
	}
	ok, err := filepath.Match(pattern, filepath.Base(path))
	if err != nil {
		return false
	}
	return ok
}
