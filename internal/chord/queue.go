package chord

import "time"

// Queue holds candidate events until the chord deadline fires.
// It is not safe for concurrent use; the dispatch loop owns it.
type Queue struct {
	events []KeyEvent
}

// Push appends an event. Callers only push candidate codes.
func (q *Queue) Push(ev KeyEvent) {
	q.events = append(q.events, ev)
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Oldest returns the first buffered event.
func (q *Queue) Oldest() (KeyEvent, bool) {
	if len(q.events) == 0 {
		return KeyEvent{}, false
	}
	return q.events[0], true
}

// Flush resolves every buffered event and empties the queue.
// The queue is cleared whether or not it held a ChordKey event.
func (q *Queue) Flush(window time.Duration) []Entry {
	entries := Mark(q.events, window)
	q.events = q.events[:0]
	return entries
}
