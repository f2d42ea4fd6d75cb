// Package chord buffers candidate key events and collapses the Copilot key chord.
//
// Some laptop keyboards report the Copilot key as a burst of three make events:
//
//	LEFTSHIFT down, LEFTMETA down, F23 down
//
// all within a few milliseconds. The resolver relabels F23 to RIGHTMETA and
// drops the prefix modifiers that arrived just before it, so applications see
// a single RIGHTMETA press instead of Shift+Meta+F23.
//
// Everything in this package is pure: no I/O and no clocks. Timestamps come
// from the kernel events themselves.
package chord

import (
	"fmt"
	"syscall"
	"time"

	"github.com/holoplot/go-evdev"
)

// Value is the state carried by an EV_KEY event.
type Value int32

const (
	Released Value = 0
	Pressed  Value = 1
	Repeated Value = 2
)

// Down reports whether the value describes a held key (press or auto-repeat).
func (v Value) Down() bool {
	return v != Released
}

// String returns the string representation of the value.
func (v Value) String() string {
	switch v {
	case Released:
		return "released"
	case Pressed:
		return "pressed"
	case Repeated:
		return "repeated"
	default:
		return fmt.Sprintf("value(%d)", int32(v))
	}
}

// KeyEvent is a single key state change observed on the physical keyboard.
type KeyEvent struct {
	Code  evdev.EvCode
	Value Value
	// Time is the kernel timestamp as an offset from the clock epoch.
	Time time.Duration
}

// FromInput converts an EV_KEY input event. The caller checks the type.
func FromInput(ev *evdev.InputEvent) KeyEvent {
	return KeyEvent{
		Code:  ev.Code,
		Value: Value(ev.Value),
		Time:  time.Duration(ev.Time.Sec)*time.Second + time.Duration(ev.Time.Usec)*time.Microsecond,
	}
}

// Input converts the event back to the kernel representation, keeping the
// original timestamp.
func (e KeyEvent) Input() *evdev.InputEvent {
	return &evdev.InputEvent{
		Time:  syscall.NsecToTimeval(e.Time.Nanoseconds()),
		Type:  evdev.EV_KEY,
		Code:  e.Code,
		Value: int32(e.Value),
	}
}

// Within reports whether e happened less than window after prev.
// Order is not assumed; the absolute distance is compared.
func (e KeyEvent) Within(prev KeyEvent, window time.Duration) bool {
	d := e.Time - prev.Time
	if d < 0 {
		d = -d
	}
	return d < window
}

func (e KeyEvent) String() string {
	return fmt.Sprintf("%s/%s@%s", CodeName(e.Code), e.Value, e.Time)
}

// CodeName returns the evdev name of a key code, e.g. "KEY_F23".
func CodeName(code evdev.EvCode) string {
	ev := evdev.InputEvent{Type: evdev.EV_KEY, Code: code}
	return ev.CodeName()
}
