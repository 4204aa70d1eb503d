package lsp

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathToURI(t *testing.T) {
	uri := PathToURI("/tmp/bundle/app.min.js")
	if uri != "file:///tmp/bundle/app.min.js" {
		t.Errorf("uri = %q", uri)
	}
}

func TestPathToURIMakesAbsolute(t *testing.T) {
	uri := PathToURI("app.min.js")
	if !strings.HasPrefix(uri, "file:///") {
		t.Errorf("relative path not absolutized: %q", uri)
	}
	if !strings.HasSuffix(uri, "/app.min.js") {
		t.Errorf("file name lost: %q", uri)
	}
}

func TestURIToPath(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"plain", "file:///tmp/bundle/app.min.js", filepath.FromSlash("/tmp/bundle/app.min.js")},
		{"escaped space", "file:///tmp/my%20bundle/app.js", filepath.FromSlash("/tmp/my bundle/app.js")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := URIToPath(tt.uri); got != tt.want {
				t.Errorf("URIToPath(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestSameDocument(t *testing.T) {
	if !SameDocument("file:///tmp/a.js", "file:///tmp/a.js") {
		t.Error("identical URIs not equal")
	}
	if !SameDocument("file:///tmp/my%20dir/a.js", "file:///tmp/my dir/a.js") {
		t.Error("escaping difference broke identity")
	}
	if SameDocument("file:///tmp/a.js", "file:///tmp/b.js") {
		t.Error("different documents reported equal")
	}
}

func TestURIRoundTrip(t *testing.T) {
	path := filepath.FromSlash("/var/data/bundles/vendor.min.js")
	if got := URIToPath(PathToURI(path)); got != path {
		t.Errorf("round trip = %q, want %q", got, path)
	}
}
