package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holoplot/go-evdev"

	"copilotd/internal/chord"
	"copilotd/internal/remap"
)

// MaxSweepCode bounds the key codes released by ReleaseAll.
const MaxSweepCode evdev.EvCode = 255

// Virtual is a uinput keyboard. It implements remap.Sink and remembers which
// keys it left down so none stay stuck when it goes away.
type Virtual struct {
	out  eventWriter
	name string

	mu     sync.Mutex
	down   map[evdev.EvCode]bool
	closed bool
}

// CloneVirtual creates a uinput device named name with the capabilities of kb.
func CloneVirtual(name string, kb *Keyboard) (*Virtual, error) {
	dev, err := evdev.CloneDevice(name, kb.dev)
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard %q: %w", name, err)
	}
	return newVirtual(name, dev), nil
}

func newVirtual(name string, out eventWriter) *Virtual {
	return &Virtual{
		out:  out,
		name: name,
		down: make(map[evdev.EvCode]bool),
	}
}

// Name returns the uinput device name.
func (v *Virtual) Name() string { return v.name }

// Emit writes ev followed by a SYN_REPORT. The kernel stamps uinput events
// itself, so the timestamp is informational.
func (v *Virtual) Emit(ev chord.KeyEvent) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return remap.ErrClosed
	}
	return v.write(ev)
}

func (v *Virtual) write(ev chord.KeyEvent) error {
	in := ev.Input()
	if err := v.out.WriteOne(in); err != nil {
		return err
	}
	syn := &evdev.InputEvent{Time: in.Time, Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}
	if err := v.out.WriteOne(syn); err != nil {
		return err
	}

	if ev.Value.Down() {
		v.down[ev.Code] = true
	} else {
		delete(v.down, ev.Code)
	}
	return nil
}

// ReleaseAll sends a release for every key code up to MaxSweepCode. It clears
// state a previous instance may have left behind.
func (v *Virtual) ReleaseAll() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return remap.ErrClosed
	}
	var errs []error
	for code := evdev.EvCode(0); code <= MaxSweepCode; code++ {
		if err := v.write(chord.KeyEvent{Code: code, Value: chord.Released}); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", chord.CodeName(code), err))
		}
	}
	return errors.Join(errs...)
}

// Held returns the keys the device currently reports down, in code order.
func (v *Virtual) Held() []evdev.EvCode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.held()
}

func (v *Virtual) held() []evdev.EvCode {
	codes := make([]evdev.EvCode, 0, len(v.down))
	for code := range v.down {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Close releases any keys still down and destroys the device.
func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	var errs []error
	for _, code := range v.held() {
		if err := v.write(chord.KeyEvent{Code: code, Value: chord.Released}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := v.out.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
