package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Codecs for moving mappings in and out of the store. Two shapes are
// accepted on import: a list of full Mapping records, or a plain
// original -> desired object, which imports at confidence 1 since a
// human wrote it down deliberately.

// WriteJSON serializes mappings as an indented JSON list.
func WriteJSON(w io.Writer, ms []Mapping) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ms); err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	return nil
}

// ReadJSON parses mappings from JSON, list or plain-map shaped.
func ReadJSON(r io.Reader) ([]Mapping, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read mappings: %w", err)
	}

	var list []Mapping
	if err := json.Unmarshal(data, &list); err == nil {
		return validate(list)
	}

	var plain map[string]string
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	return fromPlainMap(plain), nil
}

// WriteYAML serializes mappings as a YAML list.
func WriteYAML(w io.Writer, ms []Mapping) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(ms); err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	return nil
}

// ReadYAML parses mappings from YAML, list or plain-map shaped.
func ReadYAML(r io.Reader) ([]Mapping, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read mappings: %w", err)
	}

	var list []Mapping
	if err := yaml.Unmarshal(data, &list); err == nil {
		return validate(list)
	}

	var plain map[string]string
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	return fromPlainMap(plain), nil
}

// Write picks the codec from the file extension, defaulting to JSON.
func Write(w io.Writer, path string, ms []Mapping) error {
	if isYAMLPath(path) {
		return WriteYAML(w, ms)
	}
	return WriteJSON(w, ms)
}

// Read picks the codec from the file extension, defaulting to JSON.
func Read(r io.Reader, path string) ([]Mapping, error) {
	if isYAMLPath(path) {
		return ReadYAML(r)
	}
	return ReadJSON(r)
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func fromPlainMap(plain map[string]string) []Mapping {
	out := make([]Mapping, 0, len(plain))
	for original, desired := range plain {
		if original == "" || desired == "" {
			continue
		}
		out = append(out, Mapping{Original: original, Desired: desired, Confidence: 1.0})
	}
	return out
}

func validate(ms []Mapping) ([]Mapping, error) {
	for _, m := range ms {
		if m.Original == "" || m.Desired == "" {
			return nil, fmt.Errorf("mapping needs both names: %q -> %q", m.Original, m.Desired)
		}
	}
	return ms, nil
}
