// Package config handles configuration loading, validation, and management for copilotd.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// AutoDevice selects the keyboard by probing /dev/input.
const AutoDevice = "auto"

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Device selects the physical keyboard and describes the virtual one.
	Device DeviceConfig `toml:"device" json:"device" yaml:"device"`

	// Chord configures chord resolution.
	Chord ChordConfig `toml:"chord" json:"chord" yaml:"chord"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Notify configures desktop notifications on toggle.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Runtime holds process tuning.
	Runtime RuntimeConfig `toml:"runtime" json:"runtime" yaml:"runtime"`
}

// DeviceConfig holds the input and output device settings.
type DeviceConfig struct {
	// Path is the evdev node of the physical keyboard, or "auto".
	Path string `toml:"path" json:"path" yaml:"path"`

	// VirtualName is the name of the uinput keyboard.
	VirtualName string `toml:"virtual_name" json:"virtual_name" yaml:"virtual_name"`

	// Grab takes exclusive access to the physical keyboard. Without it every
	// key would reach applications twice.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`

	// StartupDelayMs is waited before the grab, so keys held while the daemon
	// was started are released on the real device first.
	StartupDelayMs int `toml:"startup_delay_ms" json:"startup_delay_ms" yaml:"startup_delay_ms"`

	// ReleaseOnStart sends a release for every key code through the new
	// virtual device.
	ReleaseOnStart bool `toml:"release_on_start" json:"release_on_start" yaml:"release_on_start"`
}

// ChordConfig holds chord resolution settings.
type ChordConfig struct {
	// WindowMs is the resolution delay and the maximum skew between the
	// events of one chord.
	WindowMs int `toml:"window_ms" json:"window_ms" yaml:"window_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stderr, stdout, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is used when Output is file or both.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`

	// LogKeystrokes logs the codes of ordinary keys at debug level.
	LogKeystrokes bool `toml:"log_keystrokes" json:"log_keystrokes" yaml:"log_keystrokes"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile is a path for the node_exporter textfile collector. Empty
	// disables the export.
	Textfile string `toml:"textfile" json:"textfile" yaml:"textfile"`
}

// NotifyConfig holds desktop notification settings.
type NotifyConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	AppName   string `toml:"app_name" json:"app_name" yaml:"app_name"`
	TimeoutMs int    `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// RuntimeConfig holds process tuning.
type RuntimeConfig struct {
	// LockMemory calls mlockall so the dispatch loop never page-faults.
	LockMemory bool `toml:"lock_memory" json:"lock_memory" yaml:"lock_memory"`

	// Nice is the scheduling priority, -20 to 19.
	Nice int `toml:"nice" json:"nice" yaml:"nice"`

	// HeartbeatSec is the liveness tick interval.
	HeartbeatSec int `toml:"heartbeat_sec" json:"heartbeat_sec" yaml:"heartbeat_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Device: DeviceConfig{
			Path:           AutoDevice,
			VirtualName:    "copilotd virtual keyboard",
			Grab:           true,
			StartupDelayMs: 100,
			ReleaseOnStart: true,
		},
		Chord: ChordConfig{
			WindowMs: 50,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Notify: NotifyConfig{
			AppName:   "copilotd",
			TimeoutMs: 3000,
		},
		Runtime: RuntimeConfig{
			HeartbeatSec: 5,
		},
	}
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// The result has environment overrides applied and is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with COPILOTD_.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("COPILOTD_DEVICE_PATH"); v != "" {
		c.Device.Path = v
	}
	if v := os.Getenv("COPILOTD_CHORD_WINDOW_MS"); v != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("COPILOTD_CHORD_WINDOW_MS: %w", err)
		}
		c.Chord.WindowMs = ms
	}
	if v := os.Getenv("COPILOTD_LOG_LEVEL"); v != "" {
		c.Logging.Level = normalizeLevel(v)
	}
	if v := os.Getenv("COPILOTD_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	return nil
}

// normalizeLevel lower-cases a level name and folds "warning" into "warn".
func normalizeLevel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return "warn"
	}
	return s
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Window returns the chord window.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Chord.WindowMs) * time.Millisecond
}

// StartupDelay returns the delay before grabbing the keyboard.
func (c *Config) StartupDelay() time.Duration {
	return time.Duration(c.Device.StartupDelayMs) * time.Millisecond
}

// Heartbeat returns the liveness tick interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.Runtime.HeartbeatSec) * time.Second
}

// RestartRequired lists the settings that differ between c and next but
// only take effect at startup. A hot reload applies everything else.
func (c *Config) RestartRequired(next *Config) []string {
	var fields []string
	if c.Device != next.Device {
		fields = append(fields, "device")
	}
	if c.Chord != next.Chord {
		fields = append(fields, "chord.window_ms")
	}
	if c.Runtime != next.Runtime {
		fields = append(fields, "runtime")
	}
	if c.Notify != next.Notify {
		fields = append(fields, "notify")
	}
	if c.Logging.Output != next.Logging.Output ||
		c.Logging.FilePath != next.Logging.FilePath ||
		c.Logging.Format != next.Logging.Format {
		fields = append(fields, "logging.output")
	}
	return fields
}
