// Package l2cap implements the radio transport negotiator. A peer
// advertises the RokidStream GATT service; the connecting side scans for
// it, reads the peer-assigned channel identifiers (PSMs) from the service's
// characteristics, and opens one L2CAP connection-oriented data channel per
// identifier. The GATT control plane and the socket layer sit behind
// interfaces so the negotiation state machine is testable without radio
// hardware.
package l2cap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/zero2005x/RokidStream-sub001/transport"
)

// RokidStream GATT identity. The primary characteristic holds the PSM of
// the send channel; the secondary characteristic, when present, holds the
// PSM of an independent reverse channel.
const (
	ServiceUUID                = "8e1f2a40-6b0e-4c11-93d5-2a7c61f3a9b1"
	PrimaryPSMCharacteristic   = "8e1f2a41-6b0e-4c11-93d5-2a7c61f3a9b1"
	SecondaryPSMCharacteristic = "8e1f2a42-6b0e-4c11-93d5-2a7c61f3a9b1"
)

// PeerDevice is a discovered peer reachable over the control connection.
type PeerDevice interface {
	Address() string
	Connect(ctx context.Context) error
	// ReadPSM reads a channel identifier from the named characteristic.
	ReadPSM(ctx context.Context, characteristic string) (uint16, error)
	Disconnect() error
}

// ControlLink is the discovery plane: it scans for a peer advertising the
// streaming service. Scan blocks until a peer is found or ctx is cancelled.
type ControlLink interface {
	Scan(ctx context.Context) (PeerDevice, error)
}

// ChannelDialer opens a connection-oriented data channel to a device
// address on a given PSM.
type ChannelDialer interface {
	Dial(ctx context.Context, addr string, psm uint16) (io.ReadWriteCloser, error)
}

// Config parameterizes a Negotiator.
type Config struct {
	Link        ControlLink
	Dialer      ChannelDialer
	WantReverse bool // read the secondary PSM and open a reverse channel
	Logger      *slog.Logger
}

// Negotiator drives the radio connection state machine:
// scan, control connect, PSM reads, then one data channel per PSM.
type Negotiator struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	state transport.State
}

// NewNegotiator creates a radio negotiator. Link and Dialer are required;
// production code passes NewBLELink and NewSocketDialer. If cfg.Logger is
// nil, slog.Default() is used.
func NewNegotiator(cfg Config) *Negotiator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Negotiator{
		cfg:   cfg,
		log:   log.With("component", "l2cap-negotiator"),
		state: transport.StateIdle,
	}
}

// State returns the negotiator's current state.
func (n *Negotiator) State() transport.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) setState(s transport.State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
	n.log.Debug("state", "state", s)
}

func (n *Negotiator) fail(kind transport.FaultKind, detail string, err error) (*transport.Endpoint, error) {
	n.setState(transport.StateFailed)
	return nil, &transport.Fault{Kind: kind, Detail: detail, Err: err}
}

// Negotiate runs discovery and handshake and opens the data channel(s).
func (n *Negotiator) Negotiate(ctx context.Context) (*transport.Endpoint, error) {
	n.setState(transport.StateDiscovering)
	dev, err := n.cfg.Link.Scan(ctx)
	if err != nil {
		return n.fail(transport.FaultDiscovery, "scan for service "+ServiceUUID, err)
	}
	n.log.Info("peer discovered", "addr", dev.Address())

	n.setState(transport.StateHandshaking)
	connCtx, cancel := context.WithTimeout(ctx, transport.ConnectTimeout)
	err = dev.Connect(connCtx)
	cancel()
	if err != nil {
		return n.fail(handshakeKind(err), "control connect to "+dev.Address(), err)
	}

	readCtx, cancel := context.WithTimeout(ctx, transport.ConnectTimeout)
	primaryPSM, err := dev.ReadPSM(readCtx, PrimaryPSMCharacteristic)
	cancel()
	if err != nil {
		dev.Disconnect()
		return n.fail(handshakeKind(err), "read primary channel identifier", err)
	}

	var secondaryPSM uint16
	if n.cfg.WantReverse {
		readCtx, cancel = context.WithTimeout(ctx, transport.ConnectTimeout)
		secondaryPSM, err = dev.ReadPSM(readCtx, SecondaryPSMCharacteristic)
		cancel()
		if err != nil {
			// The peer exposes no reverse channel; not an error.
			n.log.Info("no secondary channel identifier", "error", err)
			secondaryPSM = 0
		}
	}
	n.log.Info("channel identifiers", "primary_psm", primaryPSM, "secondary_psm", secondaryPSM)

	dialCtx, cancel := context.WithTimeout(ctx, transport.ConnectTimeout)
	primary, err := n.cfg.Dialer.Dial(dialCtx, dev.Address(), primaryPSM)
	cancel()
	if err != nil {
		dev.Disconnect()
		return n.fail(transport.FaultChannelOpen, "open primary data channel", err)
	}

	var reverse io.ReadWriteCloser
	if secondaryPSM != 0 {
		dialCtx, cancel = context.WithTimeout(ctx, transport.ConnectTimeout)
		reverse, err = n.cfg.Dialer.Dial(dialCtx, dev.Address(), secondaryPSM)
		cancel()
		if err != nil {
			// Degrade to send-only rather than failing the negotiation.
			n.log.Warn("secondary data channel failed, continuing send-only",
				"psm", secondaryPSM, "error", err)
			reverse = nil
		}
	}

	n.setState(transport.StateChannelOpen)
	ep := &transport.Endpoint{
		Primary: primary,
		Reverse: reverse,
		Remote:  dev.Address(),
		Detail:  channelDetail(primaryPSM, secondaryPSM, reverse != nil),
	}
	return ep, nil
}

func handshakeKind(err error) transport.FaultKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return transport.FaultHandshakeTimeout
	}
	return transport.FaultChannelOpen
}

func channelDetail(primary, secondary uint16, reverseOpen bool) string {
	if reverseOpen {
		return fmt.Sprintf("l2cap psm=0x%04x reverse_psm=0x%04x", primary, secondary)
	}
	return fmt.Sprintf("l2cap psm=0x%04x send-only", primary)
}
