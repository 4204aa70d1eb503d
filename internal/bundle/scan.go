package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/saracen/walker"
)

// Patterns for mining minified bundles. Deliberately regex-only: the
// scanner never parses JavaScript, it only harvests declaration-shaped
// names for the learn workflow to chew on.
var (
	declRe = regexp.MustCompile(`\b(class|function|var|let|const)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

	// Webpack-style numeric module entries: `123:(e,t,n)=>` or
	// `456:function(e,t,n)`.
	moduleRe = regexp.MustCompile(`(?:^|[{,])\s*(\d+)\s*:\s*(?:function\s*\(|\()`)

	// Short alphanumeric names are what minifiers emit.
	minifiedRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]{0,2}$|^[a-z][A-Z][0-9]?$|^[A-Za-z]{1,2}[0-9]{1,3}$`)
)

// ignoredDirs are never descended into while scanning.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".cache":       true,
}

// Symbol is one declaration-shaped name found in a bundle file.
type Symbol struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"` // class, function, var, let or const
	Offset   int    `json:"offset"`
	Minified bool   `json:"minified"`
}

// FileReport summarizes one scanned file.
type FileReport struct {
	Path        string   `json:"path"`
	Size        int64    `json:"size"`
	ModuleCount int      `json:"moduleCount"`
	Symbols     []Symbol `json:"symbols"`
}

// MinifiedCount returns how many of the file's symbols look minified.
func (f *FileReport) MinifiedCount() int {
	n := 0
	for _, s := range f.Symbols {
		if s.Minified {
			n++
		}
	}
	return n
}

// Report aggregates a whole bundle directory scan.
type Report struct {
	Root          string       `json:"root"`
	Files         []FileReport `json:"files"`
	TotalSymbols  int          `json:"totalSymbols"`
	TotalMinified int          `json:"totalMinified"`
	TotalModules  int          `json:"totalModules"`
}

// Scan walks root concurrently and mines every .js/.mjs/.cjs file for
// declaration-shaped symbols and webpack-style module boundaries. Files
// come back sorted by path regardless of walk order.
func Scan(root string) (*Report, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	if !info.IsDir() {
		file, err := scanFile(root)
		if err != nil {
			return nil, err
		}
		return aggregate(root, []FileReport{*file}), nil
	}

	var mu sync.Mutex
	var files []FileReport

	err = walker.Walk(root, func(path string, fi os.FileInfo) error {
		if fi.IsDir() {
			if ignoredDirs[fi.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !isBundleFile(path) {
			return nil
		}
		file, err := scanFile(path)
		if err != nil {
			return err
		}
		mu.Lock()
		files = append(files, *file)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return aggregate(root, files), nil
}

func isBundleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

func scanFile(path string) (*FileReport, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	text := string(content)

	report := &FileReport{
		Path:        path,
		Size:        int64(len(content)),
		ModuleCount: len(moduleRe.FindAllString(text, -1)),
	}

	seen := make(map[string]bool)
	for _, m := range declRe.FindAllStringSubmatchIndex(text, -1) {
		kind := text[m[2]:m[3]]
		name := text[m[4]:m[5]]
		if seen[name] {
			continue
		}
		seen[name] = true
		report.Symbols = append(report.Symbols, Symbol{
			Name:     name,
			Kind:     kind,
			Offset:   m[4],
			Minified: LooksMinified(name),
		})
	}
	return report, nil
}

// LooksMinified reports whether a name has the shape minifiers emit:
// one to three characters, or a short letter-digit combination.
func LooksMinified(name string) bool {
	return minifiedRe.MatchString(name)
}

func aggregate(root string, files []FileReport) *Report {
	report := &Report{Root: root, Files: files}
	for i := range files {
		report.TotalSymbols += len(files[i].Symbols)
		report.TotalMinified += files[i].MinifiedCount()
		report.TotalModules += files[i].ModuleCount
	}
	return report
}
