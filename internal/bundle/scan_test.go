package bundle

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bundle.js",
		`class Wu1 { foo(){} } function a1(x){return x} var readableName = 1; let b2 = 2; const c = 3;`)

	report, err := Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(report.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(report.Files))
	}

	file := report.Files[0]
	byName := make(map[string]Symbol)
	for _, s := range file.Symbols {
		byName[s.Name] = s
	}

	tests := []struct {
		name     string
		kind     string
		minified bool
	}{
		{"Wu1", "class", true},
		{"a1", "function", true},
		{"readableName", "var", false},
		{"b2", "let", true},
		{"c", "const", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := byName[tt.name]
			if !ok {
				t.Fatalf("symbol %q not found", tt.name)
			}
			if s.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", s.Kind, tt.kind)
			}
			if s.Minified != tt.minified {
				t.Errorf("minified = %v, want %v", s.Minified, tt.minified)
			}
		})
	}

	if report.TotalSymbols != 5 {
		t.Errorf("total symbols = %d, want 5", report.TotalSymbols)
	}
	if report.TotalMinified != 4 {
		t.Errorf("total minified = %d, want 4", report.TotalMinified)
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.js", `var a1 = 1;`)
	writeFile(t, dir, "sub/b.js", `function b2(){}`)
	writeFile(t, dir, "readme.md", `var notScanned = 1;`)
	writeFile(t, dir, "node_modules/dep.js", `var skipped = 1;`)

	report, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(report.Files) != 2 {
		t.Fatalf("files = %d, want 2 (got %+v)", len(report.Files), report.Files)
	}
	// Deterministic order regardless of concurrent walk.
	if filepath.Base(report.Files[0].Path) != "a.js" || filepath.Base(report.Files[1].Path) != "b.js" {
		t.Errorf("unexpected order: %s, %s", report.Files[0].Path, report.Files[1].Path)
	}
}

func TestScanModuleBoundaries(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "webpack.js",
		`{142:(e,t,n)=>{n(1)},857:function(e,t){t.x=1},999:(e)=>{}}`)

	report, err := Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if report.TotalModules != 3 {
		t.Errorf("modules = %d, want 3", report.TotalModules)
	}
}

func TestScanDuplicateDeclarations(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dup.js", `var a1 = 1; var a1 = 2;`)

	report, err := Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	// One entry per name no matter how often it is declared.
	if report.TotalSymbols != 1 {
		t.Errorf("symbols = %d, want 1", report.TotalSymbols)
	}
}

func TestScanMissingPath(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLooksMinified(t *testing.T) {
	minified := []string{"a", "a1", "Wu1", "xZ", "ab3", "_x"}
	readable := []string{"ReactModule", "useState", "renderTree", "fetchData"}

	for _, name := range minified {
		if !LooksMinified(name) {
			t.Errorf("LooksMinified(%q) = false, want true", name)
		}
	}
	for _, name := range readable {
		if LooksMinified(name) {
			t.Errorf("LooksMinified(%q) = true, want false", name)
		}
	}
}
