// Package pathutil matches request paths against route prefixes.
package pathutil

import "strings"

// NormalizePrefix returns prefix with a leading slash and no trailing slash.
// An empty prefix normalizes to "/".
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if trimmed := strings.TrimRight(prefix, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

// HasPathPrefix reports whether path equals prefix or is nested under it.
func HasPathPrefix(path, prefix string) bool {
	prefix = NormalizePrefix(prefix)
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// SingleSegment returns the one path segment below prefix, ignoring a
// trailing slash. It reports false for the prefix itself and for deeper
// paths.
func SingleSegment(path, prefix string) (string, bool) {
	prefix = NormalizePrefix(prefix)
	if prefix == "/" {
		prefix = ""
	}
	rest, ok := strings.CutPrefix(path, prefix+"/")
	if !ok {
		return "", false
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
