package remap

import (
	"context"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"

	"copilotd/internal/chord"
)

type recordingSink struct {
	mu     sync.Mutex
	events []chord.KeyEvent
	failAt int // 1-based emit number that fails; 0 never
	err    error
}

func (s *recordingSink) Emit(ev chord.KeyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.events)+1 == s.failAt {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []chord.KeyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chord.KeyEvent(nil), s.events...)
}

type manualTimer struct {
	mu    sync.Mutex
	c     chan time.Time
	armed bool
	arms  []time.Duration
}

func newManualTimer() *manualTimer {
	return &manualTimer{c: make(chan time.Time, 1)}
}

func (t *manualTimer) Arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = true
	t.arms = append(t.arms, d)
}

func (t *manualTimer) C() <-chan time.Time { return t.c }

func (t *manualTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
}

func (t *manualTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// fire delivers an expiry as if the deadline passed.
func (t *manualTimer) fire() {
	t.mu.Lock()
	t.armed = false
	t.mu.Unlock()
	t.c <- time.Now()
}

// sliceSource yields its frames in order, then blocks until the context is
// cancelled, or returns err if set.
type sliceSource struct {
	frames []Frame
	err    error
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f, nil
	}
	if s.err != nil {
		return Frame{}, s.err
	}
	<-ctx.Done()
	return Frame{}, ctx.Err()
}

type recordingNotifier struct {
	mu     sync.Mutex
	states []bool
}

func (n *recordingNotifier) Toggled(suppressed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, suppressed)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func key(code evdev.EvCode, v chord.Value, at int) chord.KeyEvent {
	return chord.KeyEvent{Code: code, Value: v, Time: ms(at)}
}
