package device

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilotd/internal/chord"
)

func raw(typ evdev.EvType, code evdev.EvCode, value int32, ms int64) *evdev.InputEvent {
	return &evdev.InputEvent{
		Time:  syscall.NsecToTimeval((time.Duration(ms) * time.Millisecond).Nanoseconds()),
		Type:  typ,
		Code:  code,
		Value: value,
	}
}

func keyRaw(code evdev.EvCode, value int32, ms int64) *evdev.InputEvent {
	return raw(evdev.EV_KEY, code, value, ms)
}

func report(ms int64) *evdev.InputEvent {
	return raw(evdev.EV_SYN, evdev.SYN_REPORT, 0, ms)
}

func dropped(ms int64) *evdev.InputEvent {
	return raw(evdev.EV_SYN, evdev.SYN_DROPPED, 0, ms)
}

func kev(code evdev.EvCode, v chord.Value, ms int64) chord.KeyEvent {
	return chord.KeyEvent{Code: code, Value: v, Time: time.Duration(ms) * time.Millisecond}
}

func noState() (evdev.StateMap, error) {
	return evdev.StateMap{}, nil
}

func feedAll(t *testing.T, a *assembler, in ...*evdev.InputEvent) []frameResult {
	t.Helper()
	var out []frameResult
	for _, ev := range in {
		f, ok, err := a.add(ev)
		require.NoError(t, err)
		if ok {
			out = append(out, frameResult{events: f.Events, resync: f.Resync})
		}
	}
	return out
}

type frameResult struct {
	events []chord.KeyEvent
	resync bool
}

func TestAssemblerGroupsBySynReport(t *testing.T) {
	a := newAssembler(noState)

	frames := feedAll(t, a,
		raw(evdev.EV_MSC, evdev.MSC_SCAN, 458976, 0),
		keyRaw(chord.PrefixA, 1, 0),
		keyRaw(chord.PrefixB, 1, 0),
		report(0),
		report(1),
		keyRaw(chord.PrefixB, 0, 9),
		report(9),
	)

	require.Len(t, frames, 2)
	assert.Equal(t, []chord.KeyEvent{
		kev(chord.PrefixA, chord.Pressed, 0),
		kev(chord.PrefixB, chord.Pressed, 0),
	}, frames[0].events)
	assert.False(t, frames[0].resync)
	assert.Equal(t, []chord.KeyEvent{kev(chord.PrefixB, chord.Released, 9)}, frames[1].events)

	assert.Equal(t, map[evdev.EvCode]bool{chord.PrefixA: true}, a.down)
}

func TestAssemblerResyncAfterDrop(t *testing.T) {
	state := evdev.StateMap{evdev.KEY_B: true, evdev.KEY_A: false}
	a := newAssembler(func() (evdev.StateMap, error) { return state, nil })

	frames := feedAll(t, a,
		keyRaw(evdev.KEY_A, 1, 0),
		report(0),
		keyRaw(evdev.KEY_C, 1, 5),
		dropped(6),
		keyRaw(evdev.KEY_A, 0, 7),
		report(8),
	)

	require.Len(t, frames, 2)
	assert.True(t, frames[1].resync)
	assert.Equal(t, []chord.KeyEvent{
		kev(evdev.KEY_A, chord.Released, 8),
		kev(evdev.KEY_B, chord.Pressed, 8),
	}, frames[1].events)
	assert.Equal(t, map[evdev.EvCode]bool{evdev.KEY_B: true}, a.down)
}

func TestAssemblerResyncWithoutChanges(t *testing.T) {
	a := newAssembler(noState)

	frames := feedAll(t, a, dropped(0), report(1))
	require.Len(t, frames, 1)
	assert.True(t, frames[0].resync)
	assert.Empty(t, frames[0].events)
}

func TestAssemblerStateError(t *testing.T) {
	boom := errors.New("ioctl failed")
	a := newAssembler(func() (evdev.StateMap, error) { return nil, boom })

	_, _, err := a.add(dropped(0))
	require.NoError(t, err)
	_, _, err = a.add(report(1))
	assert.ErrorIs(t, err, boom)
}

func TestDiffKeyStateOrdering(t *testing.T) {
	believed := map[evdev.EvCode]bool{evdev.KEY_Z: true, evdev.KEY_A: true, evdev.KEY_Q: true}
	actual := evdev.StateMap{evdev.KEY_Q: true, evdev.KEY_M: true, evdev.KEY_B: true}

	got := diffKeyState(believed, actual, 0)
	assert.Equal(t, []chord.KeyEvent{
		kev(evdev.KEY_A, chord.Released, 0),
		kev(evdev.KEY_Z, chord.Released, 0),
		kev(evdev.KEY_B, chord.Pressed, 0),
		kev(evdev.KEY_M, chord.Pressed, 0),
	}, got)
}
