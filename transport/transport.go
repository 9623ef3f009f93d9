// Package transport defines the contract between the streaming session and
// the concrete channel negotiators. A negotiator turns "reach this peer"
// into an open duplex byte channel; the session never sees radio or TCP
// specifics, only the Endpoint.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ConnectTimeout bounds each individual handshake step (dialing a channel,
// reading a peer characteristic). Discovery itself is unbounded and runs
// until the caller cancels its context.
const ConnectTimeout = 10 * time.Second

// State is the negotiator's position in the connection state machine.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateHandshaking State = "handshaking"
	StateChannelOpen State = "channel_open"
	StateFailed      State = "failed"
)

// FaultKind distinguishes negotiation failures for the session's owner.
type FaultKind string

const (
	FaultDiscovery        FaultKind = "discovery_failed"
	FaultHandshakeTimeout FaultKind = "handshake_timeout"
	FaultChannelOpen      FaultKind = "channel_open_failed"
)

// Fault is a terminal negotiation failure. The engine never retries; the
// owner decides whether and when to negotiate again.
type Fault struct {
	Kind   FaultKind
	Detail string
	Err    error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Fault) Unwrap() error { return f.Err }

// FaultOf extracts the Fault from an error chain, or wraps err as a fault
// of the given kind when none is present.
func FaultOf(err error, fallback FaultKind) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: fallback, Detail: err.Error(), Err: err}
}

// Endpoint is a negotiated duplex byte channel plus the transport
// parameters it was negotiated with. It is created once per successful
// negotiation, owned by the session, and never reused: reconnection starts
// a fresh negotiation.
type Endpoint struct {
	// Primary carries outbound frames and, when Reverse is nil, inbound
	// frames as well.
	Primary io.ReadWriteCloser
	// Reverse carries inbound frames when the peer negotiated an
	// independent reverse channel. Nil when the link degraded to a single
	// duplex channel.
	Reverse io.ReadWriteCloser
	// Remote identifies the peer (device address or host:port) for logs.
	Remote string
	// Detail describes the negotiated parameters (PSMs or ports) for logs.
	Detail string
}

// SendChannel returns the writer for outbound frames.
func (e *Endpoint) SendChannel() io.Writer { return e.Primary }

// ReceiveChannel returns the reader for inbound frames: the reverse channel
// when one was negotiated, otherwise the primary.
func (e *Endpoint) ReceiveChannel() io.Reader {
	if e.Reverse != nil {
		return e.Reverse
	}
	return e.Primary
}

// Close closes both halves. Closing unblocks any reader or writer parked on
// the channel, which the session's pumps treat as normal termination.
func (e *Endpoint) Close() error {
	err := e.Primary.Close()
	if e.Reverse != nil {
		if rerr := e.Reverse.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// Negotiator is the per-transport connection state machine. Negotiate
// blocks through discovery and handshake; cancel ctx to abort discovery.
// A failed Negotiate leaves the negotiator reusable for a fresh attempt.
type Negotiator interface {
	Negotiate(ctx context.Context) (*Endpoint, error)
	State() State
}
