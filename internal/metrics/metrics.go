// Package metrics exposes pilot counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing, so components can run without it.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed prometheus.Counter
	FramesSkipped   prometheus.Counter
	Collisions      prometheus.Counter
	Releases        prometheus.Counter
	Colliding       prometheus.Gauge

	SessionsStarted prometheus.Counter
	SessionErrors   prometheus.Counter
	Recording       prometheus.Gauge
	FramesRecorded  prometheus.Counter
	Powered         prometheus.Gauge

	LinkState         prometheus.Gauge
	LinkConnects      prometheus.Counter
	LinkFailures      *prometheus.CounterVec
	HeartbeatsSent    prometheus.Counter
	MessagesReceived  prometheus.Counter
	TelemetrySent     prometheus.Counter
	TelemetryBytes    prometheus.Counter
	TelemetryDropped  *prometheus.CounterVec
	TelemetryFailures prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_frames_processed_total",
			Help: "Frames run through detection and collision tracking",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_frames_skipped_total",
			Help: "Frames dropped because detection failed",
		}),
		Collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_collisions_total",
			Help: "Clear to colliding transitions",
		}),
		Releases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_releases_total",
			Help: "Release commands issued to the actuator",
		}),
		Colliding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yelkiran_colliding",
			Help: "1 while the target is inside the collision box",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_sessions_started_total",
			Help: "Recording sessions started",
		}),
		SessionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_session_errors_total",
			Help: "Session attempts aborted by an error",
		}),
		Recording: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yelkiran_recording",
			Help: "1 while a session is active",
		}),
		FramesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_frames_recorded_total",
			Help: "Frames appended to session artifacts",
		}),
		Powered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yelkiran_actuator_powered",
			Help: "Last observed actuator power state",
		}),
		LinkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yelkiran_link_state",
			Help: "Control link state: 0 disconnected, 1 connecting, 2 connected",
		}),
		LinkConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_link_connects_total",
			Help: "Successful control link connections",
		}),
		LinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yelkiran_link_failures_total",
			Help: "Control link failures by stage",
		}, []string{"stage"}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_heartbeats_sent_total",
			Help: "Heartbeats written to the control link",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_link_messages_received_total",
			Help: "Inbound control messages dispatched to the handler",
		}),
		TelemetrySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_telemetry_frames_sent_total",
			Help: "Telemetry datagrams sent",
		}),
		TelemetryBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_telemetry_bytes_sent_total",
			Help: "Telemetry payload bytes sent",
		}),
		TelemetryDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yelkiran_telemetry_frames_dropped_total",
			Help: "Telemetry frames not sent, by reason",
		}, []string{"reason"}),
		TelemetryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yelkiran_telemetry_failures_total",
			Help: "Telemetry transport errors that armed the cooldown",
		}),
	}

	m.registry.MustRegister(
		m.FramesProcessed, m.FramesSkipped, m.Collisions, m.Releases, m.Colliding,
		m.SessionsStarted, m.SessionErrors, m.Recording, m.FramesRecorded, m.Powered,
		m.LinkState, m.LinkConnects, m.LinkFailures, m.HeartbeatsSent, m.MessagesReceived,
		m.TelemetrySent, m.TelemetryBytes, m.TelemetryDropped, m.TelemetryFailures,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// FrameProcessed counts one tracked frame.
func (m *Metrics) FrameProcessed() {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
}

// FrameSkipped counts one frame dropped before tracking.
func (m *Metrics) FrameSkipped() {
	if m == nil {
		return
	}
	m.FramesSkipped.Inc()
}

// SetColliding records the tracker state.
func (m *Metrics) SetColliding(colliding bool) {
	if m == nil {
		return
	}
	m.Colliding.Set(boolToFloat(colliding))
}

// CollisionEntered counts a Clear to Colliding edge and the release it fires.
func (m *Metrics) CollisionEntered() {
	if m == nil {
		return
	}
	m.Collisions.Inc()
	m.Releases.Inc()
}

// SessionStarted marks a session as active.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.Recording.Set(1)
}

// SessionEnded marks the active session as finished.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.Recording.Set(0)
}

// SessionFailed counts an aborted session attempt.
func (m *Metrics) SessionFailed() {
	if m == nil {
		return
	}
	m.SessionErrors.Inc()
}

// FrameRecorded counts one frame written to an artifact.
func (m *Metrics) FrameRecorded() {
	if m == nil {
		return
	}
	m.FramesRecorded.Inc()
}

// SetPowered records the observed actuator power state.
func (m *Metrics) SetPowered(on bool) {
	if m == nil {
		return
	}
	m.Powered.Set(boolToFloat(on))
}

// SetLinkState records the control link state as its numeric value.
func (m *Metrics) SetLinkState(state int) {
	if m == nil {
		return
	}
	m.LinkState.Set(float64(state))
}

// LinkConnected counts a successful connection.
func (m *Metrics) LinkConnected() {
	if m == nil {
		return
	}
	m.LinkConnects.Inc()
}

// LinkFailed counts a failure at stage ("connect", "heartbeat", "receive").
func (m *Metrics) LinkFailed(stage string) {
	if m == nil {
		return
	}
	m.LinkFailures.WithLabelValues(stage).Inc()
}

// HeartbeatSent counts one heartbeat.
func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.HeartbeatsSent.Inc()
}

// MessageReceived counts one inbound control message.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

// TelemetryFrameSent counts a datagram of n bytes.
func (m *Metrics) TelemetryFrameSent(n int) {
	if m == nil {
		return
	}
	m.TelemetrySent.Inc()
	m.TelemetryBytes.Add(float64(n))
}

// TelemetryFrameDropped counts a frame that was not sent.
func (m *Metrics) TelemetryFrameDropped(reason string) {
	if m == nil {
		return
	}
	m.TelemetryDropped.WithLabelValues(reason).Inc()
}

// TelemetryFailed counts a transport error.
func (m *Metrics) TelemetryFailed() {
	if m == nil {
		return
	}
	m.TelemetryFailures.Inc()
}
