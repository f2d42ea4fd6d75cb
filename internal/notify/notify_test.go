package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	args   []interface{}
}

type fakeBus struct {
	mu     sync.Mutex
	calls  []call
	nextID uint32
	err    error
	block  chan struct{}
}

func (b *fakeBus) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, call{method: method, args: args})
	if b.err != nil {
		return &dbus.Call{Err: b.err}
	}
	b.nextID++
	return &dbus.Call{Body: []interface{}{b.nextID}}
}

func (b *fakeBus) Calls() []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]call(nil), b.calls...)
}

func TestDesktopSendsAndReplaces(t *testing.T) {
	bus := &fakeBus{}
	var hungUp bool
	d := newDesktop(Config{AppName: "test", Timeout: 1500 * time.Millisecond}, func() (caller, func() error, error) {
		return bus, func() error { hungUp = true; return nil }, nil
	})

	d.Toggled(true)
	d.Toggled(false)
	require.NoError(t, d.Close())

	calls := bus.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Interface+".Notify", calls[0].method)
	assert.Equal(t, "test", calls[0].args[0])
	assert.Equal(t, uint32(0), calls[0].args[1])
	assert.Equal(t, "Keyboard disabled", calls[0].args[3])
	assert.Equal(t, int32(1500), calls[0].args[7])

	// The second notification replaces the first.
	assert.Equal(t, uint32(1), calls[1].args[1])
	assert.Equal(t, "Keyboard enabled", calls[1].args[3])
	assert.True(t, hungUp)
}

func TestDesktopExpireTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    int32
	}{
		{"never expire", 0, 0},
		{"server default", -time.Millisecond, -1},
		{"explicit", 3 * time.Second, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{}
			d := newDesktop(Config{Timeout: tt.timeout}, func() (caller, func() error, error) {
				return bus, nil, nil
			})
			d.Toggled(true)
			require.NoError(t, d.Close())

			calls := bus.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].args[7])
		})
	}
}

func TestDesktopRedialsAfterFailure(t *testing.T) {
	bus := &fakeBus{err: errors.New("service unknown")}
	dials := 0
	d := newDesktop(Config{}, func() (caller, func() error, error) {
		dials++
		return bus, nil, nil
	})

	d.Toggled(true)
	d.Toggled(false)
	require.NoError(t, d.Close())

	assert.Len(t, bus.Calls(), 2)
	assert.Equal(t, 2, dials)
}

func TestDesktopDialError(t *testing.T) {
	d := newDesktop(Config{}, func() (caller, func() error, error) {
		return nil, nil, errors.New("no session bus")
	})
	d.Toggled(true)
	assert.NoError(t, d.Close())
}

func TestDesktopDropsWhenFull(t *testing.T) {
	bus := &fakeBus{block: make(chan struct{})}
	d := newDesktop(Config{}, func() (caller, func() error, error) {
		return bus, nil, nil
	})

	// One notification is held in the blocked call, queueSize more fit the
	// queue and the rest are dropped.
	for i := 0; i < queueSize+10; i++ {
		d.Toggled(i%2 == 0)
	}
	close(bus.block)
	require.NoError(t, d.Close())

	n := len(bus.Calls())
	assert.LessOrEqual(t, n, queueSize+1)
	assert.GreaterOrEqual(t, n, queueSize)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop{}.Toggled(true) })
}
