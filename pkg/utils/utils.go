package utils

import (
	"os"
	"path/filepath"
	"runtime"
)

// IsDir checks if a path is a directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	if !IsDir(path) {
		return os.MkdirAll(path, 0755)
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetHomeDir returns the user's home directory
func GetHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// GetConfigDir returns the platform-specific config directory
func GetConfigDir(appName string) (string, error) {
	home, err := GetHomeDir()
	if err != nil {
		return "", err
	}

	var configDir string
	switch runtime.GOOS {
	case "windows":
		configDir = filepath.Join(home, "AppData", "Roaming", appName)
	case "darwin":
		configDir = filepath.Join(home, "Library", "Application Support", appName)
	default: // linux, etc.
		// Check XDG_CONFIG_HOME first
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, appName)
		} else {
			configDir = filepath.Join(home, ".config", appName)
		}
	}

	return configDir, nil
}

// GetDataDir returns the platform-specific data directory, used for the
// daemon lock file, downloaded bundles and the mapping database
func GetDataDir(appName string) (string, error) {
	home, err := GetHomeDir()
	if err != nil {
		return "", err
	}

	var dataDir string
	switch runtime.GOOS {
	case "windows":
		dataDir = filepath.Join(home, "AppData", "Local", appName)
	case "darwin":
		dataDir = filepath.Join(home, "Library", "Application Support", appName)
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, appName)
		} else {
			dataDir = filepath.Join(home, ".local", "share", appName)
		}
	}

	return dataDir, nil
}

// TruncateString truncates a string to a maximum length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
