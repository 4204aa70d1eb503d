package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/tidwall/gjson"

	"github.com/unminlab/unmin/pkg/utils"
)

// Loader merges configuration from defaults, the user YAML config and a
// project-level JSONC file, in that priority order: the project file wins
// over the user file, which wins over defaults. Environment variables
// prefixed UNMIN_ override the user file.
type Loader struct {
	mu            sync.RWMutex
	config        *Config
	schemaLoader  *SchemaLoader
	userPath      string
	projectPaths  []string
	loadedSources []string
}

// NewLoader creates a loader wired to the standard config locations.
func NewLoader() *Loader {
	return &Loader{
		config:       DefaultConfig(),
		schemaLoader: NewSchemaLoader(),
		userPath:     userConfigPath(),
		projectPaths: projectConfigPaths(),
	}
}

// userConfigPath returns the user-level YAML config location.
func userConfigPath() string {
	configDir, err := utils.GetConfigDir("unmin")
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// projectConfigPaths returns the JSONC config files to try, in priority
// order: an explicit UNMIN_CONFIG override first, then the project root.
func projectConfigPaths() []string {
	var paths []string
	if envPath := os.Getenv("UNMIN_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".unmin.jsonc"))
	}
	return paths
}

// Load builds the effective configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := DefaultConfig()
	var loadedSources []string

	if l.userPath != "" {
		if cfg, err := l.loadUserFile(l.userPath); err == nil {
			merged = mergeConfigs(merged, cfg)
			loadedSources = append(loadedSources, l.userPath)
		}
	}

	for _, path := range l.projectPaths {
		if cfg, err := l.loadProjectFile(path); err == nil {
			merged = mergeConfigs(merged, cfg)
			loadedSources = append(loadedSources, path)
		}
	}

	l.loadedSources = loadedSources

	if err := l.Validate(merged); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	l.config = merged
	return merged, nil
}

// loadUserFile reads the user-level YAML config through viper, applying
// UNMIN_* environment overrides on top.
func (l *Loader) loadUserFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("UNMIN")
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !hasEnvOverrides() {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// hasEnvOverrides reports whether any UNMIN_ variable we honor is set, so
// an absent user file still yields an environment-only layer.
func hasEnvOverrides() bool {
	for _, key := range []string{
		"UNMIN_SERVER_COMMAND", "UNMIN_SERVER_LANGUAGE_ID", "UNMIN_SERVER_TIMEOUT_SECONDS",
		"UNMIN_DAEMON_HOST", "UNMIN_DAEMON_PORT", "UNMIN_DAEMON_LOCK_FILE",
		"UNMIN_STORAGE_DATA_DIR", "UNMIN_LOG_LEVEL",
	} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// loadProjectFile reads a JSONC project config, tolerating comments.
func (l *Loader) loadProjectFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cleaned, err := stripComments(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse JSONC in %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(cleaned), &cfg); err != nil {
		return nil, fmt.Errorf("parse JSON in %s: %w", path, err)
	}
	return &cfg, nil
}

// stripComments turns JSONC into plain JSON. gjson only validates strict
// JSON, so comment-bearing documents go through the manual stripper first.
func stripComments(content string) (string, error) {
	if !gjson.Valid(content) {
		cleaned := manualStripComments(content)
		if !gjson.Valid(cleaned) {
			return "", fmt.Errorf("invalid JSONC format")
		}
		content = cleaned
	}
	var out map[string]interface{}
	raw := gjson.Parse(content).Raw
	// Re-serialize so any trailing garbage is gone for callers that
	// expect strict JSON.
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		clean, _ := json.Marshal(out)
		return string(clean), nil
	}
	return raw, nil
}

// manualStripComments removes JavaScript-style // and /* */ comments
// line by line. Comment markers inside string values are not recognized,
// which is fine for the config keys this file carries.
func manualStripComments(content string) string {
	lines := strings.Split(content, "\n")
	var cleaned []string
	inBlock := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if inBlock || strings.HasPrefix(trimmed, "/*") {
			if strings.HasPrefix(trimmed, "/*") {
				inBlock = true
			}
			if strings.Contains(trimmed, "*/") {
				inBlock = false
				parts := strings.SplitN(trimmed, "*/", 2)
				if rest := strings.TrimSpace(parts[1]); rest != "" {
					cleaned = append(cleaned, rest)
				}
			}
			continue
		}

		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		if idx := strings.Index(trimmed, "//"); idx > 0 {
			cleaned = append(cleaned, strings.TrimSpace(trimmed[:idx]))
			continue
		}

		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n")
}

// mergeConfigs overlays cfg2 onto cfg1, field by field. Zero values in
// cfg2 leave cfg1 alone, so partial files override only what they name.
func mergeConfigs(cfg1, cfg2 *Config) *Config {
	if cfg2 == nil {
		return cfg1
	}

	merged := *cfg1

	if cfg2.Server.Command != "" {
		merged.Server.Command = cfg2.Server.Command
	}
	if len(cfg2.Server.Args) > 0 {
		merged.Server.Args = cfg2.Server.Args
	}
	if cfg2.Server.LanguageID != "" {
		merged.Server.LanguageID = cfg2.Server.LanguageID
	}
	if cfg2.Server.TimeoutSeconds != 0 {
		merged.Server.TimeoutSeconds = cfg2.Server.TimeoutSeconds
	}

	if cfg2.Daemon.Host != "" {
		merged.Daemon.Host = cfg2.Daemon.Host
	}
	if cfg2.Daemon.Port != 0 {
		merged.Daemon.Port = cfg2.Daemon.Port
	}
	if cfg2.Daemon.LockFile != "" {
		merged.Daemon.LockFile = cfg2.Daemon.LockFile
	}
	if cfg2.Daemon.StartupWaitSeconds != 0 {
		merged.Daemon.StartupWaitSeconds = cfg2.Daemon.StartupWaitSeconds
	}

	if cfg2.Storage.DataDir != "" {
		merged.Storage.DataDir = cfg2.Storage.DataDir
	}

	if cfg2.Log.Level != "" {
		merged.Log.Level = cfg2.Log.Level
	}

	return &merged
}

// Validate checks the configuration against the JSON schema.
func (l *Loader) Validate(cfg *Config) error {
	return l.schemaLoader.Validate(cfg)
}

// Save writes the configuration to path as indented JSON.
func (l *Loader) Save(cfg *Config, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.Validate(cfg); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// GetLoadedSources returns the sources the last Load actually read.
func (l *Loader) GetLoadedSources() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sources := make([]string, len(l.loadedSources))
	copy(sources, l.loadedSources)
	return sources
}

// LoadConfig loads the configuration with default settings.
func LoadConfig() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}
