package vfs

import "strings"

// isPathSafe rejects "." and ".." segments and consecutive slashes,
// ported from fs_is_path_safe.
func isPathSafe(path string) bool {
	pos := 0
	if len(path) > 0 && path[0] == '/' {
		pos++
	}
	for pos < len(path) {
		start := pos
		for pos < len(path) && path[pos] != '/' {
			pos++
		}
		segment := path[start:pos]
		if segment == "." || segment == ".." {
			return false
		}
		if pos < len(path) && path[pos] == '/' {
			if pos+1 < len(path) && path[pos+1] == '/' {
				return false
			}
			pos++
		}
	}
	return true
}

// isPathDepthValid rejects empty paths and paths whose segment count
// exceeds maxDepth, ported from fs_is_path_depth_valid.
func isPathDepthValid(path string, maxDepth int) bool {
	if path == "" {
		return false
	}
	depth := 0
	for _, segment := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if segment == "" {
			continue
		}
		depth++
		if depth > maxDepth {
			return false
		}
	}
	// A bare "/" carries no addressable segment; every operation this
	// validator guards needs at least one.
	return depth > 0
}
