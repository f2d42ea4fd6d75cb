package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/holoplot/go-evdev"

	"copilotd/internal/remap"
)

// Keyboard is a physical keyboard opened through evdev. It implements
// remap.Source.
type Keyboard struct {
	dev  *evdev.InputDevice
	path string
	name string

	in  eventReader
	asm *assembler

	mu      sync.Mutex
	grabbed bool
	closed  bool
}

// OpenKeyboard opens the evdev node at path and checks that it is a keyboard.
func OpenKeyboard(path string) (*Keyboard, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	caps := capabilitiesOf(dev)
	if !caps.keyboard() {
		dev.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotKeyboard)
	}

	name, err := dev.Name()
	if err != nil {
		name = path
	}

	k := &Keyboard{
		dev:  dev,
		path: path,
		name: name,
		in:   dev,
	}
	k.asm = newAssembler(func() (evdev.StateMap, error) {
		return dev.State(evdev.EV_KEY)
	})
	return k, nil
}

// Path returns the device node.
func (k *Keyboard) Path() string { return k.path }

// Name returns the name the kernel reports for the device.
func (k *Keyboard) Name() string { return k.name }

// Grab takes exclusive access so events stop reaching other readers.
func (k *Keyboard) Grab() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return remap.ErrClosed
	}
	if k.grabbed {
		return nil
	}
	if err := k.dev.Grab(); err != nil {
		return fmt.Errorf("grab %s: %w", k.path, err)
	}
	k.grabbed = true
	return nil
}

// Next reads until a SYN_REPORT completes a frame carrying key events.
// Non-key events are dropped.
//
// Next does not observe ctx while blocked in a read, and Close does not
// interrupt it either: go-evdev keeps the descriptor in blocking mode, so a
// pending read returns only with the next input event. Callers must not wait
// for Next after cancelling; Close still releases the grab. A read that fails
// after Close is reported as remap.ErrClosed.
func (k *Keyboard) Next(ctx context.Context) (remap.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return remap.Frame{}, err
		}

		ev, err := k.in.ReadOne()
		if err != nil {
			if k.isClosed() || errors.Is(err, os.ErrClosed) {
				return remap.Frame{}, remap.ErrClosed
			}
			return remap.Frame{}, fmt.Errorf("read %s: %w", k.path, err)
		}

		frame, ok, err := k.asm.add(ev)
		if err != nil {
			return remap.Frame{}, err
		}
		if ok {
			return frame, nil
		}
	}
}

func (k *Keyboard) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

// Close releases the grab and closes the device. It is safe to call more
// than once.
func (k *Keyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true

	if k.grabbed {
		if err := k.dev.Ungrab(); err != nil {
			slog.Debug("ungrab failed", "device", k.path, "error", err)
		}
		k.grabbed = false
	}
	return k.dev.Close()
}
