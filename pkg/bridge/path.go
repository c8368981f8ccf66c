// Package bridge adapts the engine's path-based, strictly single-open
// filesystem API to the handle-based host file protocol: it owns the
// mounted-volume list, the per-volume table of open instances, the open and
// close choreography around the engine's metadata writeback, and the
// translation of engine errors to host status codes.
package bridge

import "strings"

// CleanPath normalizes a host path: backslash separators become slashes,
// duplicate separators collapse, "." and ".." components resolve, and the
// result is absolute with no trailing separator (except the root itself).
// ".." components that would climb above the root are dropped.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := make([]string, 0, 8)
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// baseNameOffset returns the index of the basename within a clean absolute
// path. For the root path it points past the slash, giving an empty
// basename.
func baseNameOffset(path string) int {
	return strings.LastIndexByte(path, '/') + 1
}

// parentPath returns the parent directory of a clean absolute path. The
// root is its own parent.
func parentPath(path string) string {
	if path == "/" {
		return "/"
	}
	p := path[:baseNameOffset(path)-1]
	if p == "" {
		return "/"
	}
	return p
}
