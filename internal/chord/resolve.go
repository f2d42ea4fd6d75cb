package chord

import "time"

// DefaultWindow is the chord resolution delay and the maximum skew between
// the events of one physical chord.
const DefaultWindow = 50 * time.Millisecond

// State tags a buffered event as still to be emitted or dropped.
type State int

const (
	Active State = iota
	Suppressed
)

func (s State) String() string {
	if s == Suppressed {
		return "suppressed"
	}
	return "active"
}

// Entry is a queued event together with its resolution state.
type Entry struct {
	Event KeyEvent
	State State
}

// Mark runs the resolver over events, in arrival order, and returns one entry
// per input event. ChordKey events are relabelled to ChordTarget. A ChordKey
// press suppresses the prefix modifier press right before it when the two are
// less than window apart; if that happened, the prefix press one further back
// is suppressed too when it is less than window older than the first one.
// Repeated values are normalized to Pressed. The input slice is not modified.
func Mark(events []KeyEvent, window time.Duration) []Entry {
	entries := make([]Entry, len(events))
	for i, ev := range events {
		entries[i] = Entry{Event: ev}
	}

	for i := range entries {
		k := &entries[i].Event
		if k.Code == ChordKey {
			k.Code = ChordTarget
			// Releases never hide anything; consumers may depend on a modifier key-up.
			if k.Value.Down() && i >= 1 {
				prev := &entries[i-1]
				if absorbs(*prev, *k, window) {
					prev.State = Suppressed
					if i >= 2 {
						if before := &entries[i-2]; absorbs(*before, prev.Event, window) {
							before.State = Suppressed
						}
					}
				}
			}
		}
		if k.Value == Repeated {
			k.Value = Pressed
		}
	}
	return entries
}

// absorbs reports whether candidate is a stray prefix press belonging to the
// chord formed with next.
func absorbs(candidate Entry, next KeyEvent, window time.Duration) bool {
	return candidate.State == Active &&
		candidate.Event.Value.Down() &&
		IsPrefix(candidate.Event.Code) &&
		next.Within(candidate.Event, window)
}

// Emitted returns the active events of entries, in order.
func Emitted(entries []Entry) []KeyEvent {
	out := make([]KeyEvent, 0, len(entries))
	for _, e := range entries {
		if e.State == Active {
			out = append(out, e.Event)
		}
	}
	return out
}

// Resolve is Mark followed by Emitted.
func Resolve(events []KeyEvent, window time.Duration) []KeyEvent {
	return Emitted(Mark(events, window))
}
