package config

import (
	"path/filepath"
)

var (
	// AppName is used in generating file system paths.
	AppName = "gncity"
)

// ConfigDir returns the directory path for configuration files.
// Returns ~/.config/gncity by default.
func ConfigDir(homeDir string) string {
	return filepath.Join(homeDir, ".config", AppName)
}

// CacheDir returns the directory path for cache files.
// Returns ~/.cache/gncity by default.
func CacheDir(homeDir string) string {
	return filepath.Join(homeDir, ".cache", AppName)
}

// LogDir returns the directory path for log files.
// Returns ~/.local/share/gncity/logs by default.
func LogDir(homeDir string) string {
	return filepath.Join(homeDir, ".local", "share", AppName, "logs")
}

// ConfigFilePath returns the full path to the config.yaml file.
// Returns ~/.config/gncity/config.yaml by default.
func ConfigFilePath(homeDir string) string {
	return filepath.Join(ConfigDir(homeDir), "config.yaml")
}

// StagingDir returns the directory for embedded cache-table files.
// Returns ~/.cache/gncity/staging by default.
func StagingDir(homeDir string) string {
	return filepath.Join(CacheDir(homeDir), "staging")
}
