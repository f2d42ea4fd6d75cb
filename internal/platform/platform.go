// Package platform applies process-level settings that keep the key loop
// responsive: locked memory and scheduling priority.
package platform

import (
	"errors"
	"fmt"
)

// UinputPath is the device node used to create virtual input devices.
const UinputPath = "/dev/uinput"

// ErrUnsupported is returned on platforms without the required syscalls.
var ErrUnsupported = errors.New("platform: unsupported")

// Options selects which settings Apply changes. The zero value changes
// nothing.
type Options struct {
	// LockMemory locks current and future pages into RAM.
	LockMemory bool
	// Nice is the scheduling niceness; 0 leaves it unchanged.
	Nice int
}

// Validate checks that the niceness is in range.
func (o Options) Validate() error {
	if o.Nice < -20 || o.Nice > 19 {
		return fmt.Errorf("platform: nice %d out of range [-20, 19]", o.Nice)
	}
	return nil
}

// Apply changes the process settings selected by o. Every setting is tried
// and the failures are joined.
func Apply(o Options) error {
	if err := o.Validate(); err != nil {
		return err
	}

	var errs []error
	if o.LockMemory {
		if err := lockMemory(); err != nil {
			errs = append(errs, fmt.Errorf("lock memory: %w", err))
		}
	}
	if o.Nice != 0 {
		if err := setNice(o.Nice); err != nil {
			errs = append(errs, fmt.Errorf("set priority %d: %w", o.Nice, err))
		}
	}
	return errors.Join(errs...)
}

// CheckAccess reports whether the process can read and write path, e.g. an
// evdev node or UinputPath.
func CheckAccess(path string) error {
	if err := access(path); err != nil {
		return fmt.Errorf("access %s: %w", path, err)
	}
	return nil
}
