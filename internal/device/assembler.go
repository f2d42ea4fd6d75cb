package device

import (
	"fmt"
	"sort"
	"time"

	"github.com/holoplot/go-evdev"

	"copilotd/internal/chord"
	"copilotd/internal/remap"
)

// assembler groups raw input events into frames terminated by SYN_REPORT and
// keeps the key state the loop has been told about, so a SYN_DROPPED can be
// repaired by diffing against the kernel's key state.
type assembler struct {
	down     map[evdev.EvCode]bool
	pending  []chord.KeyEvent
	dropping bool

	// state queries the device's current key state (EVIOCGKEY).
	state func() (evdev.StateMap, error)
}

func newAssembler(state func() (evdev.StateMap, error)) *assembler {
	return &assembler{
		down:  make(map[evdev.EvCode]bool),
		state: state,
	}
}

// add consumes one input event. It returns a frame when ev completes one.
func (a *assembler) add(ev *evdev.InputEvent) (remap.Frame, bool, error) {
	switch {
	case ev.Type == evdev.EV_SYN && ev.Code == evdev.SYN_DROPPED:
		// Everything since the last report is unreliable.
		a.dropping = true
		a.pending = a.pending[:0]
		return remap.Frame{}, false, nil

	case ev.Type == evdev.EV_SYN && ev.Code == evdev.SYN_REPORT:
		if a.dropping {
			a.dropping = false
			return a.resync(chord.FromInput(ev).Time)
		}
		if len(a.pending) == 0 {
			return remap.Frame{}, false, nil
		}
		events := append([]chord.KeyEvent(nil), a.pending...)
		a.pending = a.pending[:0]
		a.apply(events)
		return remap.Frame{Events: events}, true, nil

	case a.dropping:
		return remap.Frame{}, false, nil

	case ev.Type == evdev.EV_KEY:
		a.pending = append(a.pending, chord.FromInput(ev))
	}
	return remap.Frame{}, false, nil
}

func (a *assembler) resync(at time.Duration) (remap.Frame, bool, error) {
	st, err := a.state()
	if err != nil {
		return remap.Frame{}, false, fmt.Errorf("query key state: %w", err)
	}
	events := diffKeyState(a.down, st, at)
	a.apply(events)
	return remap.Frame{Events: events, Resync: true}, true, nil
}

func (a *assembler) apply(events []chord.KeyEvent) {
	for _, ev := range events {
		if ev.Value.Down() {
			a.down[ev.Code] = true
		} else {
			delete(a.down, ev.Code)
		}
	}
}

// diffKeyState returns the releases for keys believed down but up in actual,
// followed by the presses for keys down in actual but not believed down,
// each group in code order.
func diffKeyState(believed map[evdev.EvCode]bool, actual evdev.StateMap, at time.Duration) []chord.KeyEvent {
	var releases, presses []evdev.EvCode
	for code := range believed {
		if !actual[code] {
			releases = append(releases, code)
		}
	}
	for code, on := range actual {
		if on && !believed[code] {
			presses = append(presses, code)
		}
	}
	sort.Slice(releases, func(i, j int) bool { return releases[i] < releases[j] })
	sort.Slice(presses, func(i, j int) bool { return presses[i] < presses[j] })

	events := make([]chord.KeyEvent, 0, len(releases)+len(presses))
	for _, code := range releases {
		events = append(events, chord.KeyEvent{Code: code, Value: chord.Released, Time: at})
	}
	for _, code := range presses {
		events = append(events, chord.KeyEvent{Code: code, Value: chord.Pressed, Time: at})
	}
	return events
}
