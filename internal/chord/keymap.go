package chord

import "github.com/holoplot/go-evdev"

// Fixed key mapping. It is not configurable.
const (
	// PrefixA and PrefixB are the modifiers the firmware sends ahead of ChordKey.
	PrefixA evdev.EvCode = evdev.KEY_LEFTSHIFT
	PrefixB evdev.EvCode = evdev.KEY_LEFTMETA

	// ChordKey is what the Copilot key reports; ChordTarget is what we emit instead.
	ChordKey    evdev.EvCode = evdev.KEY_F23
	ChordTarget evdev.EvCode = evdev.KEY_RIGHTMETA

	// TrackedModifier is passed through but its state is mirrored for the toggle chord.
	TrackedModifier evdev.EvCode = evdev.KEY_RIGHTALT

	// ToggleKey flips suppressed mode while TrackedModifier is held.
	ToggleKey evdev.EvCode = evdev.KEY_NUMLOCK
)

// IsCandidate reports whether code is held back in the queue instead of being
// forwarded immediately.
func IsCandidate(code evdev.EvCode) bool {
	switch code {
	case PrefixA, PrefixB, ChordKey:
		return true
	}
	return false
}

// IsPrefix reports whether code is one of the modifiers that may precede ChordKey.
func IsPrefix(code evdev.EvCode) bool {
	return code == PrefixA || code == PrefixB
}
