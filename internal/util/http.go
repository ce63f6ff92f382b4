package util

import (
	"net/http"
	"strings"
)

// NormalizePath collapses duplicate slashes and strips any trailing slash,
// keeping "/" for the root. Matching and cache keys both depend on this so
// that "/users/", "//users" and "/users" resolve identically.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.Contains(path, "//") {
		var b strings.Builder
		b.Grow(len(path))
		var prev byte
		for i := 0; i < len(path); i++ {
			if path[i] == '/' && prev == '/' {
				continue
			}
			b.WriteByte(path[i])
			prev = path[i]
		}
		path = b.String()
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// SplitPath splits a normalized path into its segments. The root path
// yields an empty slice.
func SplitPath(path string) []string {
	path = NormalizePath(path)
	if path == "/" {
		return nil
	}
	return strings.Split(path[1:], "/")
}

// WriteJSONError writes a minimal JSON error body with the given status.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":` + quoteJSON(message) + `}`))
}

// quoteJSON escapes a string for embedding in a JSON document.
func quoteJSON(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
