package workspace

import "path/filepath"

// canonicalizePath removes `.` and `..` from path lexically, resolving
// relative paths against an already-clean base. Absolute paths pass through
// (cleaned) unchanged. No symlinks are followed; dependency locations are
// compared as written.
func canonicalizePath(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
