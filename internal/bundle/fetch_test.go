package bundle

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/unminlab/unmin/pkg/logger"
)

func testFetchLog() *logger.Logger {
	return logger.New(io.Discard, io.Discard, logger.ERROR, "test")
}

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFetchPlainFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`var a1 = 1;`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, testFetchLog())

	path, err := f.Fetch(context.Background(), srv.URL+"/bundle.js")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != `var a1 = 1;` {
		t.Errorf("content = %q", content)
	}
}

func TestFetchTarGzExtracts(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"dist/main.js":   `var a1 = 1;`,
		"dist/vendor.js": `var b2 = 2;`,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, testFetchLog())

	extracted, err := f.Fetch(context.Background(), srv.URL+"/release.tar.gz")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(extracted, "dist", "main.js"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(content) != `var a1 = 1;` {
		t.Errorf("content = %q", content)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), testFetchLog())
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.js"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "bundle.zip")
	if err := os.WriteFile(archivePath, buildZip(t, map[string]string{
		"app.js":     `var a1 = 1;`,
		"lib/dep.js": `var b2 = 2;`,
	}), 0644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "out")
	if err := Extract(archivePath, dest); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for _, name := range []string{"app.js", filepath.Join("lib", "dep.js")} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestExtractDotPrefixedEntries(t *testing.T) {
	// tar -czf out.tgz -C dir . produces a leading "./" directory entry
	// and "./"-prefixed file names.
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "./", Mode: 0755, Typeflag: tar.TypeDir}); err != nil {
		t.Fatal(err)
	}
	content := `var a1 = 1;`
	if err := tw.WriteHeader(&tar.Header{Name: "./app.js", Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar.gz")
	if err := os.WriteFile(archivePath, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "out")
	if err := Extract(archivePath, dest); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "app.js"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(got) != content {
		t.Errorf("content = %q", got)
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.gz")
	if err := os.WriteFile(archivePath, buildTarGz(t, map[string]string{
		"../escape.js": `var a1 = 1;`,
	}), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Extract(archivePath, filepath.Join(dir, "out")); err == nil {
		t.Error("expected error for escaping entry")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.js")); !os.IsNotExist(err) {
		t.Error("escaping entry was written outside the extraction directory")
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.rar")
	if err := os.WriteFile(path, []byte("not an archive"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Extract(path, filepath.Join(dir, "out")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestIsArchive(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"release.tar.gz", true},
		{"release.tgz", true},
		{"release.tar", true},
		{"release.zip", true},
		{"bundle.js", false},
		{"archive.gz", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsArchive(tt.name); got != tt.want {
				t.Errorf("IsArchive(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
