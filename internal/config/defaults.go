package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS: ~/Library/Application Support/binder/
//   - Linux: $XDG_DATA_HOME/binder/ or ~/.local/share/binder/
//
// Falls back to ~/.binder if the home directory cannot be resolved.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	default:
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS: ~/Library/Application Support/binder/
//   - Linux: $XDG_CONFIG_HOME/binder/ or ~/.config/binder/
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	default:
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
}

// PlatformStateDir returns the directory for logs and crash reports.
func PlatformStateDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(fallbackDataDir(), "logs")
		}
		return filepath.Join(home, "Library", "Logs", "binder")
	default:
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	}
}

// PlatformRuntimeDir returns the directory for the control socket.
func PlatformRuntimeDir() string {
	if runtime.GOOS == "linux" {
		if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
			return filepath.Join(dir, "binder")
		}
	}
	return filepath.Join(os.TempDir(), "binder-"+strconv.Itoa(os.Getuid()))
}

// DefaultSocketPath returns the default control socket path.
func DefaultSocketPath() string {
	return filepath.Join(PlatformRuntimeDir(), "binderd.sock")
}

func macOSDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return fallbackDataDir()
	}
	return filepath.Join(home, "Library", "Application Support", "binder")
}

func xdgDir(env string, homeRel ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "binder")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallbackDataDir()
	}
	parts := append([]string{home}, homeRel...)
	return filepath.Join(append(parts, "binder")...)
}

func fallbackDataDir() string {
	return filepath.Join(os.TempDir(), ".binder")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
