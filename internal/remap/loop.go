package remap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"copilotd/internal/chord"
	"copilotd/internal/logging"
	"copilotd/internal/metrics"
)

// DefaultHeartbeat is the liveness tick interval.
const DefaultHeartbeat = 5 * time.Second

// Options configures a Loop. Zero values select defaults.
type Options struct {
	// Window is the chord deadline and skew tolerance.
	Window time.Duration

	// Heartbeat is the liveness tick interval.
	Heartbeat time.Duration

	// Timer overrides the chord deadline, for tests.
	Timer Timer

	Logger   *slog.Logger
	Metrics  *metrics.PipelineMetrics
	Notifier Notifier

	// OnHeartbeat runs on the loop goroutine at every liveness tick and once
	// at shutdown.
	OnHeartbeat func()
}

// Loop owns the tracker, the chord queue and the deadline. Everything except
// the source pump runs on the goroutine that called Run, so none of that
// state is locked.
type Loop struct {
	src  Source
	sink Sink

	window    time.Duration
	heartbeat time.Duration
	timer     Timer

	tracker  Tracker
	queue    chord.Queue
	queuedAt time.Time

	logger      *slog.Logger
	metrics     *metrics.PipelineMetrics
	notifier    Notifier
	onHeartbeat func()

	now func() time.Time
}

// New creates a Loop reading from src and writing to sink.
func New(src Source, sink Sink, opts Options) *Loop {
	l := &Loop{
		src:         src,
		sink:        sink,
		window:      opts.Window,
		heartbeat:   opts.Heartbeat,
		timer:       opts.Timer,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		onHeartbeat: opts.OnHeartbeat,
		now:         time.Now,
	}
	if l.window <= 0 {
		l.window = chord.DefaultWindow
	}
	if l.heartbeat <= 0 {
		l.heartbeat = DefaultHeartbeat
	}
	if l.timer == nil {
		l.timer = NewTimer()
	}
	if l.logger == nil {
		l.logger = slog.Default().With("component", "remap")
	}
	if l.metrics == nil {
		l.metrics = metrics.NewPipelineMetrics(metrics.NewRegistry("copilotd"))
	}
	return l
}

// Suppressed reports whether the keyboard is currently disabled.
func (l *Loop) Suppressed() bool {
	return l.tracker.Suppressed()
}

// Pending returns the number of queued candidate events.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Run dispatches events until ctx is cancelled or the source or sink fails.
// Queued events are flushed before it returns. A cancelled context is not an
// error.
func (l *Loop) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan Frame)
	pumpErr := make(chan error, 1)
	go l.pump(ctx, frames, pumpErr)

	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()

	defer func() {
		l.timer.Stop()
		if ferr := l.Expire(); ferr != nil && err == nil {
			err = fmt.Errorf("flush on shutdown: %w", ferr)
		}
		if l.onHeartbeat != nil {
			l.onHeartbeat()
		}
	}()

	l.logger.Info("dispatch loop started", "window", l.window)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping", "reason", context.Cause(ctx))
			return nil

		case perr := <-pumpErr:
			if ctx.Err() != nil && errors.Is(perr, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read keyboard: %w", perr)

		case f := <-frames:
			if err := l.HandleFrame(f); err != nil {
				return err
			}

		case <-l.timer.C():
			if err := l.Expire(); err != nil {
				return err
			}

		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) pump(ctx context.Context, frames chan<- Frame, errc chan<- error) {
	for {
		f, err := l.src.Next(ctx)
		if err != nil {
			errc <- err
			return
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

// HandleFrame routes every event of f, in order.
func (l *Loop) HandleFrame(f Frame) error {
	if f.Resync {
		l.metrics.Resyncs.Inc()
		l.logger.Warn("kernel dropped events, replaying key state", "events", len(f.Events))
	}
	for _, ev := range f.Events {
		if err := l.HandleEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// HandleEvent routes one key event: candidates are queued and re-arm the
// deadline, everything else goes through the tracker.
func (l *Loop) HandleEvent(ev chord.KeyEvent) error {
	l.metrics.EventsIn.Inc()

	if chord.IsCandidate(ev.Code) {
		if l.queue.Len() == 0 {
			l.queuedAt = l.now()
		}
		l.queue.Push(ev)
		l.metrics.Queued.Inc()
		l.metrics.QueueDepth.Set(int64(l.queue.Len()))
		l.timer.Arm(l.window)
		l.logger.Debug("queued", "event", ev)
		return nil
	}

	out := l.tracker.Handle(ev)
	if out.Toggled {
		suppressed := l.tracker.Suppressed()
		l.metrics.RecordToggle(suppressed)
		l.logger.Info("keyboard toggled", "disabled", suppressed)
		if l.notifier != nil {
			l.notifier.Toggled(suppressed)
		}
	}
	if out.Dropped {
		l.metrics.DroppedDisabled.Inc()
	}
	for _, e := range out.Emit {
		l.logger.Debug("forward", logging.KeystrokeAttr, e)
		if err := l.emit(e); err != nil {
			return err
		}
	}
	return nil
}

// Expire resolves and flushes the chord queue. It is a no-op on an empty
// queue.
func (l *Loop) Expire() error {
	if l.queue.Len() == 0 {
		return nil
	}

	delay := l.now().Sub(l.queuedAt)
	entries := l.queue.Flush(l.window)

	var suppressed, remapped int
	for _, e := range entries {
		if e.State == chord.Suppressed {
			suppressed++
			l.logger.Debug("suppressed chord prefix", "event", e.Event)
			continue
		}
		if e.Event.Code == chord.ChordTarget {
			remapped++
		}
		l.logger.Debug("resolved", "event", e.Event)
		if err := l.emit(e.Event); err != nil {
			return err
		}
	}
	l.metrics.RecordFlush(delay, suppressed, remapped)
	return nil
}

func (l *Loop) emit(ev chord.KeyEvent) error {
	if err := l.sink.Emit(ev); err != nil {
		l.metrics.WriteErrors.Inc()
		return fmt.Errorf("write %s: %w", ev, err)
	}
	l.metrics.Forwarded.Inc()
	return nil
}

func (l *Loop) tick() {
	l.metrics.UpdateUptime()
	l.logger.Debug("alive",
		"queued", l.queue.Len(),
		"disabled", l.tracker.Suppressed(),
		"events_in", l.metrics.EventsIn.Value())
	if l.onHeartbeat != nil {
		l.onHeartbeat()
	}
}
