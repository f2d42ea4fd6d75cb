package remap

import "time"

// Timer is a single re-armable deadline.
type Timer interface {
	// Arm replaces any pending deadline with one d from now.
	Arm(d time.Duration)
	// C delivers the expiry of the current deadline.
	C() <-chan time.Time
	// Stop cancels the pending deadline, if any.
	Stop()
}

// deadline implements Timer on a time.Timer.
type deadline struct {
	t *time.Timer
}

// NewTimer returns a Timer that is initially disarmed.
func NewTimer() Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &deadline{t: t}
}

func (d *deadline) Arm(dur time.Duration) {
	d.Stop()
	d.t.Reset(dur)
}

func (d *deadline) C() <-chan time.Time {
	return d.t.C
}

// Stop also drains a fired but unread expiry, so a stale value is never
// mistaken for the next deadline.
func (d *deadline) Stop() {
	if !d.t.Stop() {
		select {
		case <-d.t.C:
		default:
		}
	}
}
