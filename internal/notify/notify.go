// Package notify tells the desktop user when the keyboard is disabled or
// re-enabled, through org.freedesktop.Notifications on the session bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// D-Bus names of the freedesktop notification service.
const (
	Service   = "org.freedesktop.Notifications"
	Path      = "/org/freedesktop/Notifications"
	Interface = "org.freedesktop.Notifications"
)

const (
	defaultAppName = "copilotd"
	queueSize      = 4
	callTimeout    = 2 * time.Second
)

// ErrQueueFull is reported through the logger when a notification is dropped.
var ErrQueueFull = errors.New("notify: queue full")

// Nop discards every notification.
type Nop struct{}

// Toggled does nothing.
func (Nop) Toggled(bool) {}

// Config holds notifier settings.
type Config struct {
	AppName string
	// Timeout is the expiry requested from the server. Zero asks for a
	// notification that never expires; a negative value leaves it to the
	// server.
	Timeout time.Duration
	Logger  *slog.Logger
}

// caller is the part of a dbus.BusObject the notifier uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// dialer connects to the notification service.
type dialer func() (caller, func() error, error)

func sessionBus() (caller, func() error, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("connect session bus: %w", err)
	}
	return conn.Object(Service, dbus.ObjectPath(Path)), conn.Close, nil
}

// Desktop sends notifications from a background goroutine so Toggled never
// blocks the caller. Notifications that do not fit the queue are dropped.
type Desktop struct {
	appName string
	timeout time.Duration
	logger  *slog.Logger
	dial    dialer

	queue chan bool
	done  chan struct{}
	once  sync.Once

	// Owned by the worker.
	obj    caller
	hangup func() error
	lastID uint32
}

// NewDesktop starts a notifier on the session bus. The bus is dialled on the
// first notification, so a daemon without a desktop session pays nothing
// until the keyboard is toggled.
func NewDesktop(cfg Config) *Desktop {
	return newDesktop(cfg, sessionBus)
}

func newDesktop(cfg Config, dial dialer) *Desktop {
	if cfg.AppName == "" {
		cfg.AppName = defaultAppName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "notify")
	}

	d := &Desktop{
		appName: cfg.AppName,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		dial:    dial,
		queue:   make(chan bool, queueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Toggled queues a notification for the new mode.
func (d *Desktop) Toggled(suppressed bool) {
	select {
	case d.queue <- suppressed:
	default:
		d.logger.Debug("notification dropped", "error", ErrQueueFull)
	}
}

// Close stops the worker after it has sent what is queued.
func (d *Desktop) Close() error {
	d.once.Do(func() { close(d.queue) })
	<-d.done
	return nil
}

func (d *Desktop) run() {
	defer close(d.done)
	defer d.hangUp()

	for suppressed := range d.queue {
		if err := d.send(suppressed); err != nil {
			d.logger.Warn("notification failed", "error", err)
		}
	}
}

func (d *Desktop) send(suppressed bool) error {
	if d.obj == nil {
		obj, hangup, err := d.dial()
		if err != nil {
			return err
		}
		d.obj, d.hangup = obj, hangup
	}

	summary, body := message(suppressed)
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	call := d.obj.CallWithContext(ctx, Interface+".Notify", 0,
		d.appName,
		d.lastID, // replaces the previous toggle notification
		"input-keyboard",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))},
		expireTimeout(d.timeout),
	)

	var id uint32
	if err := call.Store(&id); err != nil {
		// The bus may have gone away; dial again next time.
		d.hangUp()
		return fmt.Errorf("notify: %w", err)
	}
	d.lastID = id
	return nil
}

func (d *Desktop) hangUp() {
	if d.hangup != nil {
		if err := d.hangup(); err != nil {
			d.logger.Debug("close session bus", "error", err)
		}
	}
	d.obj, d.hangup = nil, nil
}

// expireTimeout converts t to the Notify expire_timeout argument.
func expireTimeout(t time.Duration) int32 {
	if t < 0 {
		return -1
	}
	return int32(t / time.Millisecond)
}

func message(suppressed bool) (summary, body string) {
	if suppressed {
		return "Keyboard disabled", "Press Right Alt + Num Lock to enable it again."
	}
	return "Keyboard enabled", "Key events are forwarded again."
}
