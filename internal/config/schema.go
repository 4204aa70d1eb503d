package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaLoader handles JSON schema validation of configurations.
type SchemaLoader struct {
	mu     sync.Mutex
	schema *jsonschema.Schema
}

// NewSchemaLoader creates a new schema loader.
func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{}
}

// Validate checks a configuration against the schema.
func (sl *SchemaLoader) Validate(cfg *Config) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.schema == nil {
		schema, err := jsonschema.CompileString("config.schema.json", generateSchema())
		if err != nil {
			return fmt.Errorf("compile schema: %w", err)
		}
		sl.schema = schema
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config for validation: %w", err)
	}

	var cfgData interface{}
	if err := json.Unmarshal(cfgJSON, &cfgData); err != nil {
		return fmt.Errorf("unmarshal config for validation: %w", err)
	}

	if err := sl.schema.Validate(cfgData); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// generateSchema builds the JSON schema the configuration must satisfy.
func generateSchema() string {
	schema := map[string]interface{}{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"title":   "unmin Configuration",
		"type":    "object",
		"properties": map[string]interface{}{
			"server": map[string]interface{}{
				"type":        "object",
				"description": "Language server configuration",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"minLength":   1,
						"description": "Language server executable",
					},
					"args": map[string]interface{}{
						"type":        "array",
						"description": "Arguments passed to the server",
						"items":       map[string]interface{}{"type": "string"},
					},
					"language_id": map[string]interface{}{
						"type":        "string",
						"description": "languageId announced when opening documents",
					},
					"timeout_seconds": map[string]interface{}{
						"type":        "integer",
						"minimum":     1,
						"maximum":     600,
						"description": "Per-request deadline in seconds",
					},
				},
				"required": []string{"command"},
			},
			"daemon": map[string]interface{}{
				"type":        "object",
				"description": "Rename daemon endpoint",
				"properties": map[string]interface{}{
					"host": map[string]interface{}{
						"type":        "string",
						"description": "Listen host",
					},
					"port": map[string]interface{}{
						"type":        "integer",
						"minimum":     0,
						"maximum":     65535,
						"description": "Listen port",
					},
					"lock_file": map[string]interface{}{
						"type":        "string",
						"description": "Singleton lock file path",
					},
					"startup_wait_seconds": map[string]interface{}{
						"type":        "integer",
						"minimum":     1,
						"description": "Autostart readiness budget in seconds",
					},
				},
			},
			"storage": map[string]interface{}{
				"type":        "object",
				"description": "Data storage settings",
				"properties": map[string]interface{}{
					"data_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory for the mapping store, bundles and lock file",
					},
				},
			},
			"log": map[string]interface{}{
				"type":        "object",
				"description": "Logging preferences",
				"properties": map[string]interface{}{
					"level": map[string]interface{}{
						"type":        "string",
						"description": "Minimum log level",
						"enum":        []string{"debug", "info", "warn", "error"},
					},
				},
			},
		},
		"required": []string{"server"},
	}

	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	return string(schemaJSON)
}

// ValidateConfig is a convenience function for one-off validation.
func ValidateConfig(cfg *Config) error {
	loader := NewSchemaLoader()
	return loader.Validate(cfg)
}

// SaveSchema writes the JSON schema to a file, for editor integration.
func SaveSchema(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(generateSchema()), 0644); err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}
	return nil
}
