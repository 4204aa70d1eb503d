package lsp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestDecodeLocations(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		count int
	}{
		{"null result", `null`, 0},
		{"empty list", `[]`, 0},
		{
			name:  "single location object",
			raw:   `{"uri":"file:///a.js","range":{"start":{"line":0,"character":6},"end":{"line":0,"character":9}}}`,
			count: 1,
		},
		{
			name:  "location list",
			raw:   `[{"uri":"file:///a.js","range":{"start":{"line":0,"character":6},"end":{"line":0,"character":9}}},{"uri":"file:///a.js","range":{"start":{"line":2,"character":0},"end":{"line":2,"character":3}}}]`,
			count: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, err := decodeLocations(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(locs) != tt.count {
				t.Errorf("got %d locations, want %d", len(locs), tt.count)
			}
		})
	}

	t.Run("garbage", func(t *testing.T) {
		if _, err := decodeLocations(json.RawMessage(`42`)); err == nil {
			t.Error("expected error for non-location result")
		}
	})
}

func TestWorkspaceEditIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		edit *WorkspaceEdit
		want bool
	}{
		{"nil edit", nil, true},
		{"no changes map", &WorkspaceEdit{}, true},
		{"empty slice for a document", &WorkspaceEdit{Changes: map[string][]TextEdit{"file:///a.js": {}}}, true},
		{
			name: "one edit",
			edit: &WorkspaceEdit{Changes: map[string][]TextEdit{
				"file:///a.js": {{Range: Range{}, NewText: "x"}},
			}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.edit.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	if cfg.Command != "typescript-language-server" {
		t.Errorf("command = %q", cfg.Command)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "--stdio" {
		t.Errorf("args = %v", cfg.Args)
	}
}

// TestSessionAgainstRealServer drives a real typescript-language-server
// through the full open/prepare/rename cycle. Skipped when the binary is
// not installed or in -short runs.
func TestSessionAgainstRealServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping language server integration test in short mode")
	}
	if _, err := exec.LookPath("typescript-language-server"); err != nil {
		t.Skip("typescript-language-server not installed")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.js")
	content := "class Wu1 { greet() { return new Wu1(); } }\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sess := NewSession(DefaultServerConfig(), dir, testLog())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		t.Fatalf("start session: %v", err)
	}
	defer sess.Close(context.Background())

	if err := sess.OpenDocument(path); err != nil {
		t.Fatalf("open document: %v", err)
	}

	uri := PathToURI(path)
	pos := Position{Line: 0, Character: 6} // the W of Wu1

	if err := sess.PrepareRename(ctx, uri, pos); err != nil {
		t.Fatalf("prepareRename: %v", err)
	}

	refs, err := sess.References(ctx, uri, pos, true)
	if err != nil {
		t.Fatalf("references: %v", err)
	}
	if len(refs) < 2 {
		t.Errorf("expected declaration and usage, got %d references", len(refs))
	}

	edit, err := sess.Rename(ctx, uri, pos, "ReactModule")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if edit.IsEmpty() {
		t.Fatal("rename produced an empty edit")
	}
}
