// Package metrics holds the Prometheus instruments the streaming session
// reports into. The sink is injected at session construction; a nil sink
// disables instrumentation entirely, so the engine carries no process-wide
// metric state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the session instruments.
type Metrics struct {
	FramesSent     *prometheus.CounterVec // by frame type
	FramesReceived *prometheus.CounterVec // by frame type
	FramesDropped  *prometheus.CounterVec // by queue side
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter
	Keyframes      prometheus.Counter
	Heartbeats     prometheus.Counter
	ProtocolErrors prometheus.Counter
	StateChanges   *prometheus.CounterVec // by target state
}

// New creates and registers all session metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rokidstream_frames_sent_total",
			Help: "Frames serialized onto the wire, by frame type",
		}, []string{"type"}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rokidstream_frames_received_total",
			Help: "Frames deserialized from the wire, by frame type",
		}, []string{"type"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rokidstream_frames_dropped_total",
			Help: "Frames evicted by the bounded queues, by side",
		}, []string{"side"}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokidstream_bytes_sent_total",
			Help: "Payload bytes sent",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokidstream_bytes_received_total",
			Help: "Payload bytes received",
		}),
		Keyframes: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokidstream_keyframes_total",
			Help: "Keyframes sent",
		}),
		Heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokidstream_heartbeats_total",
			Help: "Heartbeat frames emitted during send silence",
		}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rokidstream_protocol_errors_total",
			Help: "Malformed frames skipped on the receive path",
		}),
		StateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rokidstream_state_changes_total",
			Help: "Session state transitions, by target state",
		}, []string{"state"}),
	}
}
