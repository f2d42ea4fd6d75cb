// Package remap runs the dispatch loop that sits between the grabbed physical
// keyboard and the virtual one. It routes every key event either straight to
// the sink, through the modifier state tracker, or into the chord queue, and
// flushes the queue when the chord deadline expires.
package remap

import (
	"context"
	"errors"

	"copilotd/internal/chord"
)

// ErrClosed is returned by a Source or Sink that has been closed.
var ErrClosed = errors.New("remap: closed")

// Frame is a batch of key events read from the source in one go. Resync marks
// the synthetic events that reconcile the source's key state after the kernel
// dropped events.
type Frame struct {
	Events []chord.KeyEvent
	Resync bool
}

// Source yields key events from the physical keyboard. Next blocks until a
// frame is available, the context is cancelled, or the source fails.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Sink writes one key state change followed by a sync report. The event is
// visible to consumers when Emit returns.
type Sink interface {
	Emit(ev chord.KeyEvent) error
}

// Notifier is told about suppressed mode changes. Implementations must not
// block.
type Notifier interface {
	Toggled(suppressed bool)
}
