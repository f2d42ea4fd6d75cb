package device

import (
	"fmt"
	"slices"

	"github.com/holoplot/go-evdev"

	"copilotd/internal/chord"
)

// capabilities is the subset of an evdev device's capabilities that decides
// whether it is a keyboard.
type capabilities struct {
	types []evdev.EvType
	keys  []evdev.EvCode
}

func capabilitiesOf(dev *evdev.InputDevice) capabilities {
	return capabilities{
		types: dev.CapableTypes(),
		keys:  dev.CapableEvents(evdev.EV_KEY),
	}
}

// keyboard requires key and repeat events and the letter and Meta keys. Mice,
// power buttons and media remotes fail at least one of these.
func (c capabilities) keyboard() bool {
	return slices.Contains(c.types, evdev.EV_KEY) &&
		slices.Contains(c.types, evdev.EV_REP) &&
		slices.Contains(c.keys, evdev.KEY_A) &&
		slices.Contains(c.keys, chord.PrefixB)
}

// copilot reports whether the device can send the Copilot key.
func (c capabilities) copilot() bool {
	return slices.Contains(c.keys, chord.ChordKey)
}

// Candidate describes an input device considered by Discover.
type Candidate struct {
	Path     string
	Name     string
	Keyboard bool
	Copilot  bool
}

// List probes every evdev node. Devices that cannot be opened are skipped.
func List() ([]Candidate, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	out := make([]Candidate, 0, len(paths))
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		caps := capabilitiesOf(dev)
		dev.Close()

		out = append(out, Candidate{
			Path:     p.Path,
			Name:     p.Name,
			Keyboard: caps.keyboard(),
			Copilot:  caps.copilot(),
		})
	}
	return out, nil
}

// Discover returns the path of the keyboard to grab. exclude is the name of
// our own virtual device, which must never be picked.
func Discover(exclude string) (string, error) {
	cands, err := List()
	if err != nil {
		return "", err
	}
	c, err := pick(cands, exclude)
	if err != nil {
		return "", err
	}
	return c.Path, nil
}

// pick prefers the first keyboard that has the Copilot key, falling back to
// the first keyboard.
func pick(cands []Candidate, exclude string) (Candidate, error) {
	var fallback *Candidate
	for i := range cands {
		c := &cands[i]
		if !c.Keyboard || (exclude != "" && c.Name == exclude) {
			continue
		}
		if c.Copilot {
			return *c, nil
		}
		if fallback == nil {
			fallback = c
		}
	}
	if fallback == nil {
		return Candidate{}, ErrNoKeyboard
	}
	return *fallback, nil
}
