package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig is matched by every ValidationErrors value.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the names of the invalid fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// maxVirtualName is UINPUT_MAX_NAME_SIZE minus the terminator.
const maxVirtualName = 79

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDevice(&c.Device)...)
	errs = append(errs, validateChord(&c.Chord)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateNotify(&c.Notify)...)
	errs = append(errs, validateRuntime(&c.Runtime)...)

	if c.Metrics.Textfile != "" && !filepath.IsAbs(c.Metrics.Textfile) {
		errs = append(errs, ValidationError{
			Field:   "metrics.textfile",
			Message: "must be an absolute path",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDevice(d *DeviceConfig) ValidationErrors {
	var errs ValidationErrors

	if d.Path != AutoDevice && !filepath.IsAbs(d.Path) {
		errs = append(errs, ValidationError{
			Field:   "device.path",
			Message: fmt.Sprintf("must be %q or an absolute path, got %q", AutoDevice, d.Path),
		})
	}

	if d.VirtualName == "" {
		errs = append(errs, *RequiredFieldError("device.virtual_name"))
	} else if len(d.VirtualName) > maxVirtualName {
		errs = append(errs, ValidationError{
			Field:   "device.virtual_name",
			Message: fmt.Sprintf("longer than %d bytes", maxVirtualName),
		})
	}

	if d.StartupDelayMs < 0 || d.StartupDelayMs > 10000 {
		errs = append(errs, *RangeError("device.startup_delay_ms", 0, 10000))
	}

	return errs
}

func validateChord(ch *ChordConfig) ValidationErrors {
	if ch.WindowMs < 1 || ch.WindowMs > 1000 {
		return ValidationErrors{*RangeError("chord.window_ms", 1, 1000)}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath != "" && !filepath.IsAbs(l.FilePath) {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "must be an absolute path",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stderr, stdout, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateNotify(n *NotifyConfig) ValidationErrors {
	var errs ValidationErrors
	if n.Enabled && n.AppName == "" {
		errs = append(errs, *RequiredFieldError("notify.app_name"))
	}
	if n.TimeoutMs < -1 {
		errs = append(errs, ValidationError{
			Field:   "notify.timeout_ms",
			Message: "must be -1 (server default), 0 (never expire) or positive",
		})
	}
	return errs
}

func validateRuntime(r *RuntimeConfig) ValidationErrors {
	var errs ValidationErrors
	if r.Nice < -20 || r.Nice > 19 {
		errs = append(errs, *RangeError("runtime.nice", -20, 19))
	}
	if r.HeartbeatSec < 1 || r.HeartbeatSec > 3600 {
		errs = append(errs, *RangeError("runtime.heartbeat_sec", 1, 3600))
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
