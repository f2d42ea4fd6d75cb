package remap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilotd/internal/chord"
	"copilotd/internal/metrics"
)

func newTestLoop(src Source) (*Loop, *recordingSink, *manualTimer, *metrics.PipelineMetrics) {
	sink := &recordingSink{}
	timer := newManualTimer()
	m := metrics.NewPipelineMetrics(metrics.NewRegistry("test"))
	if src == nil {
		src = &sliceSource{}
	}
	l := New(src, sink, Options{Timer: timer, Metrics: m})
	return l, sink, timer, m
}

func feed(t *testing.T, l *Loop, events ...chord.KeyEvent) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, l.HandleEvent(ev))
	}
}

func TestLoopChordCollapse(t *testing.T) {
	l, sink, timer, m := newTestLoop(nil)

	feed(t, l,
		key(chord.PrefixA, chord.Pressed, 0),
		key(chord.ChordKey, chord.Pressed, 10),
	)
	assert.Empty(t, sink.Events(), "candidates are never forwarded immediately")
	assert.Equal(t, []time.Duration{chord.DefaultWindow, chord.DefaultWindow}, timer.arms)
	assert.Equal(t, 2, l.Pending())

	require.NoError(t, l.Expire())
	assert.Equal(t, []chord.KeyEvent{key(chord.ChordTarget, chord.Pressed, 10)}, sink.Events())
	assert.Equal(t, 0, l.Pending())
	assert.Equal(t, uint64(1), m.Suppressed.Value())
	assert.Equal(t, uint64(1), m.ChordsRemapped.Value())
}

func TestLoopTwoLevelCollapse(t *testing.T) {
	l, sink, _, _ := newTestLoop(nil)

	feed(t, l,
		key(chord.PrefixB, chord.Pressed, 0),
		key(chord.PrefixA, chord.Pressed, 5),
		key(chord.ChordKey, chord.Pressed, 12),
	)
	require.NoError(t, l.Expire())
	assert.Equal(t, []chord.KeyEvent{key(chord.ChordTarget, chord.Pressed, 12)}, sink.Events())
}

func TestLoopOutsideWindowTwoCycles(t *testing.T) {
	l, sink, _, _ := newTestLoop(nil)

	feed(t, l, key(chord.PrefixA, chord.Pressed, 0))
	require.NoError(t, l.Expire())
	feed(t, l, key(chord.ChordKey, chord.Pressed, 80))
	require.NoError(t, l.Expire())

	assert.Equal(t, []chord.KeyEvent{
		key(chord.PrefixA, chord.Pressed, 0),
		key(chord.ChordTarget, chord.Pressed, 80),
	}, sink.Events())
}

func TestLoopIdempotentDrain(t *testing.T) {
	l, sink, _, _ := newTestLoop(nil)

	in := []chord.KeyEvent{
		key(chord.PrefixA, chord.Pressed, 0),
		key(chord.PrefixB, chord.Pressed, 10),
		key(chord.PrefixB, chord.Released, 20),
	}
	feed(t, l, in...)
	require.NoError(t, l.Expire())
	assert.Equal(t, in, sink.Events())

	// A second expiry with nothing queued emits nothing.
	require.NoError(t, l.Expire())
	assert.Len(t, sink.Events(), 3)
}

func TestLoopNonCandidatesBypassQueue(t *testing.T) {
	l, sink, timer, _ := newTestLoop(nil)

	feed(t, l,
		key(chord.PrefixA, chord.Pressed, 0),
		key(evdev.KEY_A, chord.Pressed, 5),
		key(evdev.KEY_A, chord.Repeated, 300),
	)
	// KEY_A overtakes the queued shift; the queue only releases on expiry.
	assert.Equal(t, []chord.KeyEvent{
		key(evdev.KEY_A, chord.Pressed, 5),
		key(evdev.KEY_A, chord.Repeated, 300),
	}, sink.Events())
	assert.Len(t, timer.arms, 1)
}

func TestLoopToggle(t *testing.T) {
	l, sink, _, m := newTestLoop(nil)
	notifier := &recordingNotifier{}
	l.notifier = notifier

	feed(t, l,
		key(chord.TrackedModifier, chord.Pressed, 0),
		key(chord.ToggleKey, chord.Pressed, 10),
		key(chord.ToggleKey, chord.Released, 20),
		key(chord.TrackedModifier, chord.Released, 30),
		key(evdev.KEY_A, chord.Pressed, 40),
		key(evdev.KEY_A, chord.Released, 50),
	)
	assert.True(t, l.Suppressed())
	assert.Equal(t, []chord.KeyEvent{
		key(chord.TrackedModifier, chord.Pressed, 0),
		key(chord.TrackedModifier, chord.Released, 10),
	}, sink.Events())
	assert.Equal(t, uint64(3), m.DroppedDisabled.Value())
	assert.Equal(t, int64(1), m.SuppressedMode.Value())
	assert.Equal(t, []bool{true}, notifier.states)

	feed(t, l,
		key(chord.TrackedModifier, chord.Pressed, 100),
		key(chord.ToggleKey, chord.Pressed, 110),
		key(chord.ToggleKey, chord.Released, 120),
		key(chord.TrackedModifier, chord.Released, 130),
		key(evdev.KEY_A, chord.Pressed, 140),
	)
	assert.False(t, l.Suppressed())
	assert.Equal(t, []bool{true, false}, notifier.states)
	assert.Equal(t, []chord.KeyEvent{
		key(chord.TrackedModifier, chord.Pressed, 0),
		key(chord.TrackedModifier, chord.Released, 10),
		key(chord.TrackedModifier, chord.Released, 130),
		key(evdev.KEY_A, chord.Pressed, 140),
	}, sink.Events())
}

func TestLoopCandidatesQueuedWhileSuppressed(t *testing.T) {
	l, sink, _, _ := newTestLoop(nil)

	feed(t, l,
		key(chord.TrackedModifier, chord.Pressed, 0),
		key(chord.ToggleKey, chord.Pressed, 10),
		key(chord.PrefixA, chord.Pressed, 100),
		key(chord.PrefixA, chord.Released, 120),
	)
	require.True(t, l.Suppressed())
	assert.Equal(t, 2, l.Pending())

	require.NoError(t, l.Expire())
	assert.Equal(t, []chord.KeyEvent{
		key(chord.TrackedModifier, chord.Pressed, 0),
		key(chord.TrackedModifier, chord.Released, 10),
		key(chord.PrefixA, chord.Pressed, 100),
		key(chord.PrefixA, chord.Released, 120),
	}, sink.Events())
}

func TestLoopResyncFrame(t *testing.T) {
	l, sink, _, m := newTestLoop(nil)

	require.NoError(t, l.HandleFrame(Frame{
		Resync: true,
		Events: []chord.KeyEvent{
			key(evdev.KEY_A, chord.Released, 0),
			key(chord.PrefixB, chord.Pressed, 0),
		},
	}))
	assert.Equal(t, uint64(1), m.Resyncs.Value())
	assert.Equal(t, []chord.KeyEvent{key(evdev.KEY_A, chord.Released, 0)}, sink.Events())
	assert.Equal(t, 1, l.Pending(), "no resync event is skipped")
}

func TestLoopWriteError(t *testing.T) {
	l, sink, _, m := newTestLoop(nil)
	sink.failAt = 1
	sink.err = ErrClosed

	err := l.HandleEvent(key(evdev.KEY_A, chord.Pressed, 0))
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, uint64(1), m.WriteErrors.Value())
}

func TestRunDispatchesAndFlushesOnShutdown(t *testing.T) {
	src := &sliceSource{frames: []Frame{
		{Events: []chord.KeyEvent{key(evdev.KEY_A, chord.Pressed, 0)}},
		{Events: []chord.KeyEvent{
			key(chord.PrefixA, chord.Pressed, 10),
			key(chord.ChordKey, chord.Pressed, 12),
		}},
		{Events: []chord.KeyEvent{key(chord.ChordKey, chord.Released, 200)}},
	}}
	l, sink, timer, m := newTestLoop(src)
	heartbeats := 0
	l.onHeartbeat = func() { heartbeats++ }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return m.EventsIn.Value() == 4 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, timer.Armed, time.Second, time.Millisecond)

	// The whole chord, release included, is still queued when the deadline
	// fires.
	timer.fire()
	require.Eventually(t, func() bool { return len(sink.Events()) == 3 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []chord.KeyEvent{
		key(evdev.KEY_A, chord.Pressed, 0),
		key(chord.ChordTarget, chord.Pressed, 12),
		key(chord.ChordTarget, chord.Released, 200),
	}, sink.Events())
	assert.Equal(t, 1, heartbeats, "shutdown runs the heartbeat hook once")
	assert.Equal(t, 0, l.Pending())
}

func TestRunFlushesQueueOnShutdown(t *testing.T) {
	src := &sliceSource{frames: []Frame{
		{Events: []chord.KeyEvent{key(chord.PrefixB, chord.Pressed, 0)}},
	}}
	l, sink, _, m := newTestLoop(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return m.EventsIn.Value() == 1 }, 2*time.Second, time.Millisecond)
	assert.Empty(t, sink.Events())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []chord.KeyEvent{key(chord.PrefixB, chord.Pressed, 0)}, sink.Events())
}

func TestRunSourceError(t *testing.T) {
	readErr := errors.New("device gone")
	src := &sliceSource{
		frames: []Frame{{Events: []chord.KeyEvent{key(chord.PrefixA, chord.Pressed, 0)}}},
		err:    readErr,
	}
	l, sink, _, _ := newTestLoop(src)

	err := l.Run(context.Background())
	require.ErrorIs(t, err, readErr)
	assert.Contains(t, err.Error(), "read keyboard")
	// The frame is handed over before the error is read; the queued prefix
	// is flushed on the way out.
	assert.Equal(t, []chord.KeyEvent{key(chord.PrefixA, chord.Pressed, 0)}, sink.Events())
	assert.Equal(t, 0, l.Pending())
}

func TestRunWithRealTimer(t *testing.T) {
	src := &sliceSource{frames: []Frame{
		{Events: []chord.KeyEvent{
			key(chord.PrefixA, chord.Pressed, 0),
			key(chord.PrefixB, chord.Pressed, 1),
			key(chord.ChordKey, chord.Pressed, 2),
		}},
	}}
	sink := &recordingSink{}
	l := New(src, sink, Options{Window: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.Events()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, key(chord.ChordTarget, chord.Pressed, 2), sink.Events()[0])

	cancel()
	require.NoError(t, <-done)
}

func TestDeadlineRearmReplaces(t *testing.T) {
	tm := NewTimer()
	tm.Arm(time.Hour)
	tm.Arm(5 * time.Millisecond)

	select {
	case <-tm.C():
	case <-time.After(2 * time.Second):
		t.Fatal("re-armed deadline did not fire")
	}

	// A fired but unread expiry is drained by Stop.
	tm.Arm(time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	tm.Stop()
	select {
	case <-tm.C():
		t.Fatal("stale expiry delivered after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}
