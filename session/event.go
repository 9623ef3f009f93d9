package session

import "github.com/zero2005x/RokidStream-sub001/internal/wire"

// EventKind tags the events a session delivers to its owner. Events replace
// assignable callbacks so the engine makes no assumption about the owner's
// threading.
type EventKind int

const (
	// EventStateChanged reports a session state transition in Event.State.
	EventStateChanged EventKind = iota
	// EventConnected fires once when the negotiated channel is open.
	EventConnected
	// EventDisconnected fires exactly once when the session goes down
	// involuntarily (peer disconnect, liveness expiry, channel failure).
	EventDisconnected
	// EventControl carries a peer control command in Event.Control.
	EventControl
	// EventError carries a terminal-to-the-attempt failure in Event.Err.
	// The engine never retries; retry policy belongs to the owner.
	EventError
)

// ErrorKind classifies session failures for the owner.
type ErrorKind string

const (
	ErrDiscoveryFailed     ErrorKind = "discovery_failed"
	ErrHandshakeTimeout    ErrorKind = "handshake_timeout"
	ErrChannelOpenFailed   ErrorKind = "channel_open_failed"
	ErrChannelClosedByPeer ErrorKind = "channel_closed_by_peer"
	ErrProtocolViolation   ErrorKind = "protocol_violation"
	ErrLivenessTimeout     ErrorKind = "liveness_timeout"
)

// Error is a classified session failure.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Detail }

// Event is one notification from the session to its owner.
type Event struct {
	Kind    EventKind
	State   State        // EventStateChanged
	Control wire.Control // EventControl
	Err     *Error       // EventError
}

// emit delivers an event without ever blocking a pump: when the owner is
// not draining Events(), the oldest unread events are lost, not the pumps.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event buffer full, dropping", "kind", ev.Kind)
	}
}

// Events returns the owner-facing notification stream. The channel is
// buffered; an owner that stops draining loses events, never frames.
func (s *Session) Events() <-chan Event {
	return s.events
}
