package chord

import (
	"testing"

	"github.com/holoplot/go-evdev"
)

func TestQueueFlushClears(t *testing.T) {
	var q Queue
	q.Push(key(PrefixA, Pressed, 0))
	q.Push(key(PrefixB, Pressed, 3))

	if q.Len() != 2 {
		t.Fatalf("expected 2 queued events, got %d", q.Len())
	}
	if oldest, ok := q.Oldest(); !ok || oldest.Code != PrefixA {
		t.Errorf("expected oldest PrefixA, got %v (ok=%v)", oldest, ok)
	}

	entries := q.Flush(DefaultWindow)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.State != Active {
			t.Errorf("entry %d: expected active, got %s", i, e.State)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty after flush, has %d", q.Len())
	}
	if _, ok := q.Oldest(); ok {
		t.Error("Oldest should report false on an empty queue")
	}
}

func TestQueueFlushEmpty(t *testing.T) {
	var q Queue
	if entries := q.Flush(DefaultWindow); len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestQueueReuseAfterFlush(t *testing.T) {
	var q Queue
	q.Push(key(PrefixA, Pressed, 0))
	first := q.Flush(DefaultWindow)

	q.Push(key(ChordKey, Pressed, 100))
	second := q.Flush(DefaultWindow)

	// The first result must not be overwritten by the reused buffer.
	if first[0].Event.Code != PrefixA {
		t.Errorf("first flush result changed: %v", first[0].Event)
	}
	if len(second) != 1 || second[0].Event.Code != ChordTarget {
		t.Errorf("unexpected second flush: %v", second)
	}
}

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		code evdev.EvCode
		want bool
	}{
		{evdev.KEY_LEFTSHIFT, true},
		{evdev.KEY_LEFTMETA, true},
		{evdev.KEY_F23, true},
		{evdev.KEY_RIGHTMETA, false},
		{evdev.KEY_RIGHTALT, false},
		{evdev.KEY_NUMLOCK, false},
		{evdev.KEY_A, false},
	}

	for _, tt := range tests {
		t.Run(CodeName(tt.code), func(t *testing.T) {
			if got := IsCandidate(tt.code); got != tt.want {
				t.Errorf("IsCandidate(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Released, "released"},
		{Pressed, "pressed"},
		{Repeated, "repeated"},
		{Value(7), "value(7)"},
	}

	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("Value(%d).String() = %q, want %q", int32(tt.v), got, tt.want)
		}
	}
}

func TestInputRoundTrip(t *testing.T) {
	ev := key(ChordKey, Pressed, 1500)
	in := ev.Input()
	if in.Type != evdev.EV_KEY {
		t.Fatalf("expected EV_KEY, got %d", in.Type)
	}
	if in.Time.Sec != 1 || in.Time.Usec != 500000 {
		t.Errorf("unexpected timeval %+v", in.Time)
	}
	if back := FromInput(in); back != ev {
		t.Errorf("expected %v, got %v", ev, back)
	}
}
