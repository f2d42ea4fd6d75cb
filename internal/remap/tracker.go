package remap

import "copilotd/internal/chord"

// Outcome is what the tracker decided for one non-candidate event.
type Outcome struct {
	// Emit lists the events to write, in order.
	Emit []chord.KeyEvent
	// Toggled is set when the event flipped suppressed mode.
	Toggled bool
	// Dropped is set when the event was swallowed because of suppressed mode.
	Dropped bool
}

// Tracker mirrors the tracked modifier and owns suppressed mode. The zero
// value is ready to use.
type Tracker struct {
	modifierDown bool
	suppressed   bool
	// toggleHeld is set from a consumed toggle press until its release, so
	// repeats and the release of that press never reach the sink.
	toggleHeld bool
}

// Suppressed reports whether the keyboard is disabled.
func (t *Tracker) Suppressed() bool {
	return t.suppressed
}

// ModifierDown reports the last observed state of the tracked modifier.
func (t *Tracker) ModifierDown() bool {
	return t.modifierDown
}

// Handle decides the outcome for a non-candidate key event.
func (t *Tracker) Handle(ev chord.KeyEvent) Outcome {
	switch {
	case ev.Code == chord.TrackedModifier:
		t.modifierDown = ev.Value.Down()
		return t.forward(ev)

	case ev.Code == chord.ToggleKey && ev.Value == chord.Pressed && t.modifierDown:
		t.suppressed = !t.suppressed
		t.toggleHeld = true
		out := Outcome{Toggled: true}
		if t.suppressed {
			// Lift the modifier so nothing downstream sees it stuck.
			out.Emit = []chord.KeyEvent{{
				Code:  chord.TrackedModifier,
				Value: chord.Released,
				Time:  ev.Time,
			}}
		}
		return out

	case ev.Code == chord.ToggleKey && t.toggleHeld:
		if ev.Value == chord.Released {
			t.toggleHeld = false
		}
		return Outcome{}
	}

	return t.forward(ev)
}

func (t *Tracker) forward(ev chord.KeyEvent) Outcome {
	if t.suppressed {
		return Outcome{Dropped: true}
	}
	return Outcome{Emit: []chord.KeyEvent{ev}}
}
