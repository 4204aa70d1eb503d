package lsp

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// PathToURI converts a filesystem path to a file:// URI. Relative paths
// are made absolute first so the server and client agree on identity.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.ToSlash(abs)
	if runtime.GOOS == "windows" && !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return "file://" + abs
}

// URIToPath converts a file:// URI back to a filesystem path. Percent
// escapes are decoded when present; a URI that does not parse is returned
// with just the scheme stripped.
func URIToPath(uri string) string {
	trimmed := strings.TrimPrefix(uri, "file://")
	if decoded, err := url.PathUnescape(trimmed); err == nil {
		trimmed = decoded
	}
	if runtime.GOOS == "windows" && strings.HasPrefix(trimmed, "/") && strings.Contains(trimmed, ":") {
		trimmed = strings.TrimPrefix(trimmed, "/")
	}
	return filepath.FromSlash(trimmed)
}

// SameDocument reports whether two file URIs name the same document after
// normalization. Servers sometimes echo URIs with differing escaping.
func SameDocument(a, b string) bool {
	if a == b {
		return true
	}
	return URIToPath(a) == URIToPath(b)
}
