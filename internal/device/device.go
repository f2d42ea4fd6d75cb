// Package device adapts evdev input devices to the remap loop: a grabbed
// physical keyboard as the event source and a cloned uinput keyboard as the
// sink.
package device

import (
	"errors"

	"github.com/holoplot/go-evdev"
)

var (
	// ErrNoKeyboard is returned by Discover when no input device looks like
	// a keyboard.
	ErrNoKeyboard = errors.New("device: no keyboard found")

	// ErrNotKeyboard is returned when the configured device lacks the
	// capabilities of a keyboard.
	ErrNotKeyboard = errors.New("device: not a keyboard")
)

// eventReader is the read side of an evdev device.
type eventReader interface {
	ReadOne() (*evdev.InputEvent, error)
}

// eventWriter is the write side of a uinput device.
type eventWriter interface {
	WriteOne(event *evdev.InputEvent) error
	Close() error
}
