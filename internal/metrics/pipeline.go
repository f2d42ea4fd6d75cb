package metrics

import (
	"time"
)

// PipelineMetrics holds the counters of the remapping pipeline.
type PipelineMetrics struct {
	registry *Registry

	// Counters
	EventsIn        *Counter
	Forwarded       *Counter
	Queued          *Counter
	Suppressed      *Counter
	ChordsRemapped  *Counter
	Toggles         *Counter
	Resyncs         *Counter
	DroppedDisabled *Counter
	Flushes         *Counter
	WriteErrors     *Counter

	// Gauges
	SuppressedMode *Gauge
	QueueDepth     *Gauge
	UptimeSeconds  *Gauge

	// Histograms
	ResolutionDelay *Histogram
}

var startTime = time.Now()

// NewPipelineMetrics creates and registers all pipeline metrics.
func NewPipelineMetrics(registry *Registry) *PipelineMetrics {
	if registry == nil {
		registry = Default()
	}

	return &PipelineMetrics{
		registry: registry,

		EventsIn: registry.RegisterCounter(
			"events_in_total",
			"Key events read from the physical keyboard",
			nil,
		),
		Forwarded: registry.RegisterCounter(
			"events_forwarded_total",
			"Key events written to the virtual keyboard",
			nil,
		),
		Queued: registry.RegisterCounter(
			"events_queued_total",
			"Candidate key events held for chord resolution",
			nil,
		),
		Suppressed: registry.RegisterCounter(
			"events_suppressed_total",
			"Prefix modifier presses dropped as part of a chord",
			nil,
		),
		ChordsRemapped: registry.RegisterCounter(
			"chords_remapped_total",
			"Chord key events relabelled to the target key",
			nil,
		),
		Toggles: registry.RegisterCounter(
			"toggles_total",
			"Suppressed mode toggles",
			nil,
		),
		Resyncs: registry.RegisterCounter(
			"resyncs_total",
			"Kernel buffer overruns recovered by resynchronisation",
			nil,
		),
		DroppedDisabled: registry.RegisterCounter(
			"events_dropped_disabled_total",
			"Key events swallowed while suppressed mode was on",
			nil,
		),
		Flushes: registry.RegisterCounter(
			"queue_flushes_total",
			"Chord queue flushes",
			nil,
		),
		WriteErrors: registry.RegisterCounter(
			"write_errors_total",
			"Failed writes to the virtual keyboard",
			nil,
		),

		SuppressedMode: registry.RegisterGauge(
			"suppressed_mode",
			"1 while suppressed mode is on",
			nil,
		),
		QueueDepth: registry.RegisterGauge(
			"queue_depth",
			"Candidate events waiting in the chord queue",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds the daemon has been running",
			nil,
		),

		ResolutionDelay: registry.RegisterHistogram(
			"resolution_delay_seconds",
			"Time between the oldest queued event and its flush",
			nil,
			LatencyBuckets,
		),
	}
}

// Registry returns the registry the metrics are registered in.
func (m *PipelineMetrics) Registry() *Registry {
	return m.registry
}

// RecordFlush records one queue flush.
func (m *PipelineMetrics) RecordFlush(delay time.Duration, suppressed, remapped int) {
	m.Flushes.Inc()
	m.ResolutionDelay.ObserveDuration(delay)
	m.Suppressed.Add(uint64(suppressed))
	m.ChordsRemapped.Add(uint64(remapped))
	m.QueueDepth.Set(0)
}

// RecordToggle records a suppressed mode change.
func (m *PipelineMetrics) RecordToggle(suppressed bool) {
	m.Toggles.Inc()
	m.SuppressedMode.SetBool(suppressed)
}

// UpdateUptime updates the uptime metric.
func (m *PipelineMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns a snapshot of key metrics, for the liveness log line.
func (m *PipelineMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"events_in":        m.EventsIn.Value(),
		"forwarded":        m.Forwarded.Value(),
		"queued":           m.Queued.Value(),
		"suppressed":       m.Suppressed.Value(),
		"chords_remapped":  m.ChordsRemapped.Value(),
		"toggles":          m.Toggles.Value(),
		"resyncs":          m.Resyncs.Value(),
		"dropped_disabled": m.DroppedDisabled.Value(),
		"suppressed_mode":  m.SuppressedMode.Value(),
		"uptime_seconds":   m.UptimeSeconds.Value(),
	}
}
