package config

import (
	"os"
	"path/filepath"
)

// SystemConfigPath is used when running as root.
const SystemConfigPath = "/etc/copilotd/config.toml"

// ConfigDir returns $XDG_CONFIG_HOME/copilotd, or ~/.config/copilotd.
func ConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "copilotd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "copilotd")
}

// DefaultPath returns the configuration file path used when none is given:
// $COPILOTD_CONFIG if set, the system path for root, otherwise the first
// existing config file in ConfigDir, falling back to config.toml there.
func DefaultPath() string {
	if p := os.Getenv("COPILOTD_CONFIG"); p != "" {
		return p
	}
	if os.Geteuid() == 0 {
		return SystemConfigPath
	}
	if p := FindConfigFile(ConfigDir()); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile returns the first config.<ext> in dir, or "".
func FindConfigFile(dir string) string {
	for _, ext := range SupportedConfigFormats() {
		path := filepath.Join(dir, "config."+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
