package session

import (
	"log/slog"
	"time"

	"github.com/zero2005x/RokidStream-sub001/internal/metrics"
	"github.com/zero2005x/RokidStream-sub001/internal/nalu"
	"github.com/zero2005x/RokidStream-sub001/internal/wire"
	"github.com/zero2005x/RokidStream-sub001/media"
)

// Defaults for the session's timing discipline. The pop timeout bounds how
// long a pump sleeps before it re-checks stop requests and the heartbeat
// and liveness clocks.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultLivenessTimeout   = 30 * time.Second
	DefaultPopTimeout        = 100 * time.Millisecond
)

type options struct {
	logger            *slog.Logger
	metrics           *metrics.Metrics
	family            nalu.Family
	format            wire.Format
	heartbeatInterval time.Duration
	livenessTimeout   time.Duration
	popTimeout        time.Duration
	sendQueueSize     int
	recvQueueSize     int
	handleControl     bool
}

func defaultOptions() options {
	return options{
		family:            nalu.FamilyH264,
		format:            wire.FormatRadio,
		heartbeatInterval: DefaultHeartbeatInterval,
		livenessTimeout:   DefaultLivenessTimeout,
		popTimeout:        DefaultPopTimeout,
		sendQueueSize:     media.EncoderQueueSize,
		recvQueueSize:     media.DecoderQueueSize,
		handleControl:     true,
	}
}

// Option configures a Session at construction.
type Option func(*options)

// WithLogger sets the logger; nil falls back to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithMetrics injects a metrics sink. Without one the session records
// nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCodecFamily selects the NAL numbering scheme for classification.
// Chosen once per session from the encoder collaborator's capability probe.
func WithCodecFamily(f nalu.Family) Option {
	return func(o *options) { o.family = f }
}

// WithWireFormat selects the frame header layout matching the transport.
func WithWireFormat(f wire.Format) Option {
	return func(o *options) { o.format = f }
}

// WithHeartbeatInterval overrides the send-silence heartbeat interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) { o.heartbeatInterval = d }
}

// WithLivenessTimeout overrides how long the peer may stay silent before
// the session declares it dead.
func WithLivenessTimeout(d time.Duration) Option {
	return func(o *options) { o.livenessTimeout = d }
}

// WithQueueSizes overrides the encoder-side and decoder-side queue
// capacities.
func WithQueueSizes(send, recv int) Option {
	return func(o *options) {
		o.sendQueueSize = send
		o.recvQueueSize = recv
	}
}

// WithControlHandling toggles the session's own handling of peer
// disconnect control commands. When disabled every control command is only
// surfaced as an event.
func WithControlHandling(enabled bool) Option {
	return func(o *options) { o.handleControl = enabled }
}
