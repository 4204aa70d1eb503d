package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/unminlab/unmin/pkg/utils"
)

// Config holds all configuration for unmin.
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Daemon  DaemonConfig  `json:"daemon" mapstructure:"daemon"`
	Storage StorageConfig `json:"storage" mapstructure:"storage"`
	Log     LogConfig     `json:"log" mapstructure:"log"`
}

// ServerConfig describes the external language server.
type ServerConfig struct {
	Command        string   `json:"command" mapstructure:"command"`                 // Executable to spawn
	Args           []string `json:"args" mapstructure:"args"`                       // Arguments passed to it
	LanguageID     string   `json:"language_id" mapstructure:"language_id"`         // languageId announced in didOpen
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds"` // Per-request deadline
}

// DaemonConfig describes the rename daemon endpoint.
type DaemonConfig struct {
	Host               string `json:"host" mapstructure:"host"`                                 // Listen host, loopback in practice
	Port               int    `json:"port" mapstructure:"port"`                                 // Listen port
	LockFile           string `json:"lock_file" mapstructure:"lock_file"`                       // Lock path; empty means <data-dir>/unmind.lock
	StartupWaitSeconds int    `json:"startup_wait_seconds" mapstructure:"startup_wait_seconds"` // Autostart readiness budget
}

// StorageConfig describes where unmin keeps its data.
type StorageConfig struct {
	DataDir string `json:"data_dir" mapstructure:"data_dir"` // Empty means the platform data dir
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `json:"level" mapstructure:"level"` // debug, info, warn or error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Command:        "typescript-language-server",
			Args:           []string{"--stdio"},
			LanguageID:     "javascript",
			TimeoutSeconds: 30,
		},
		Daemon: DaemonConfig{
			Host:               "127.0.0.1",
			Port:               7831,
			StartupWaitSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Addr returns the daemon's host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Daemon.Host, c.Daemon.Port)
}

// RequestTimeout returns the language server request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// StartupWait returns how long autostart waits for daemon readiness.
func (c *Config) StartupWait() time.Duration {
	return time.Duration(c.Daemon.StartupWaitSeconds) * time.Second
}

// DataDir resolves the data directory, falling back to the platform
// default when none is configured.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return utils.GetDataDir("unmin")
}

// LockPath resolves the daemon lock file location.
func (c *Config) LockPath() (string, error) {
	if c.Daemon.LockFile != "" {
		return c.Daemon.LockFile, nil
	}
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "unmind.lock"), nil
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error marshaling config: %v", err)
	}
	return string(data)
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() (*Config, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &clone, nil
}
