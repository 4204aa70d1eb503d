package bundle

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unminlab/unmin/pkg/logger"
)

// Fetcher downloads bundles into the data directory and unpacks the
// archive formats release pages hand out.
type Fetcher struct {
	client  *http.Client
	destDir string
	log     *logger.Logger
}

// NewFetcher builds a fetcher storing downloads under destDir.
func NewFetcher(destDir string, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Default()
	}
	return &Fetcher{
		client:  &http.Client{Timeout: 5 * time.Minute},
		destDir: destDir,
		log:     log,
	}
}

// Fetch downloads rawURL and, when it is an archive, extracts it next to
// the download. It returns the path callers should scan: the extraction
// directory for archives, the file itself otherwise.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	name, err := fileNameFromURL(rawURL)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(f.destDir, 0755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	dest := filepath.Join(f.destDir, name)

	if err := f.download(ctx, rawURL, dest); err != nil {
		return "", err
	}
	f.log.Info("downloaded %s (%s)", name, dest)

	if !IsArchive(name) {
		return dest, nil
	}

	extractDir := strings.TrimSuffix(dest, archiveSuffix(name))
	if err := Extract(dest, extractDir); err != nil {
		return "", err
	}
	f.log.Info("extracted to %s", extractDir)
	return extractDir, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func fileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("url %s has no file name", rawURL)
	}
	return name, nil
}

// archive suffixes recognized by Extract, longest first so .tar.gz wins
// over .gz.
var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar", ".zip"}

// IsArchive reports whether name has a supported archive extension.
func IsArchive(name string) bool {
	return archiveSuffix(name) != ""
}

func archiveSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return name[len(name)-len(suffix):]
		}
	}
	return ""
}

// Extract unpacks archivePath into destDir, creating it as needed.
func Extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}

	switch strings.ToLower(archiveSuffix(archivePath)) {
	case ".tar.gz", ".tgz":
		return extractTar(archivePath, destDir, true)
	case ".tar":
		return extractTar(archivePath, destDir, false)
	case ".zip":
		return extractZip(archivePath, destDir)
	}
	return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
}

func extractTar(archivePath, destDir string, gzipped bool) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if gzipped {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("read gzip %s: %w", archivePath, err)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", archivePath, err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Symlinks and the rest are skipped; bundles are plain trees.
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := safeJoin(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}

		src, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open %s in %s: %w", entry.Name, archivePath, err)
		}
		err = writeEntry(target, src, entry.Mode())
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// safeJoin joins name under destDir, refusing entries that would escape
// it through .. components or absolute paths. The destination itself is
// allowed: tarballs built with `tar -C dir .` carry a `./` entry.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target == filepath.Clean(destDir) {
		return target, nil
	}
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes extraction directory: %s", name)
	}
	return target, nil
}

func writeEntry(target string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}
