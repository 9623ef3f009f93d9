// Package lan implements the TCP transport negotiator. Peers advertise a
// well-known mDNS service; the connecting side resolves it and dials the
// advertised primary port, plus a secondary port when independent
// reverse-direction traffic is wanted.
package lan

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/zero2005x/RokidStream-sub001/transport"
)

// Well-known service identity. The secondary port carries the reverse
// channel and is published in the service's TXT record.
const (
	ServiceName          = "_rokidstream._tcp"
	DefaultPrimaryPort   = 52000
	DefaultSecondaryPort = 52001
)

// Resolver finds a peer advertising the streaming service. Lookup blocks
// until a peer is found or ctx is cancelled; discovery has no timeout of
// its own.
type Resolver interface {
	Lookup(ctx context.Context) (Peer, error)
}

// Peer is a resolved service advertisement.
type Peer struct {
	Host          string
	PrimaryPort   int
	SecondaryPort int // 0 when the peer advertises no reverse channel
}

// Dialer abstracts net.Dialer for tests.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Config parameterizes a Negotiator.
type Config struct {
	Resolver    Resolver
	Dialer      Dialer  // nil: net.Dialer with transport.ConnectTimeout
	WantReverse bool    // dial the secondary port for an independent receive channel
	Logger      *slog.Logger
}

// Negotiator discovers a peer over mDNS and opens the TCP channel(s).
// A failed attempt leaves it reusable: the next Negotiate starts over from
// discovery.
type Negotiator struct {
	cfg    Config
	log    *slog.Logger
	dialer Dialer

	mu    sync.Mutex
	state transport.State
}

// NewNegotiator creates a LAN negotiator. If cfg.Resolver is nil, an mDNS
// resolver for ServiceName is used. If cfg.Logger is nil, slog.Default()
// is used.
func NewNegotiator(cfg Config) *Negotiator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NewMDNSResolver(ServiceName, log)
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: transport.ConnectTimeout}
	}
	return &Negotiator{
		cfg:    cfg,
		log:    log.With("component", "lan-negotiator"),
		dialer: dialer,
		state:  transport.StateIdle,
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

// Negotiate resolves the service and opens the data channel(s).
func (n *Negotiator) Negotiate(ctx context.Context) (*transport.Endpoint, error) {
	n.setState(transport.StateDiscovering)
	peer, err := n.cfg.Resolver.Lookup(ctx)
	if err != nil {
		n.setState(transport.StateFailed)
		return nil, &transport.Fault{Kind: transport.FaultDiscovery, Detail: "service resolution", Err: err}
	}
	n.log.Info("peer resolved", "host", peer.Host,
		"primary_port", peer.PrimaryPort, "secondary_port", peer.SecondaryPort)

	n.setState(transport.StateHandshaking)
	dialCtx, cancel := context.WithTimeout(ctx, transport.ConnectTimeout)
	defer cancel()

	primaryAddr := net.JoinHostPort(peer.Host, fmt.Sprint(peer.PrimaryPort))
	primary, err := n.dialer.DialContext(dialCtx, "tcp", primaryAddr)
	if err != nil {
		n.setState(transport.StateFailed)
		kind := transport.FaultChannelOpen
		if dialCtx.Err() == context.DeadlineExceeded {
			kind = transport.FaultHandshakeTimeout
		}
		return nil, &transport.Fault{Kind: kind, Detail: "dial " + primaryAddr, Err: err}
	}

	var reverse net.Conn
	if n.cfg.WantReverse && peer.SecondaryPort > 0 {
		secondaryAddr := net.JoinHostPort(peer.Host, fmt.Sprint(peer.SecondaryPort))
		revCtx, revCancel := context.WithTimeout(ctx, transport.ConnectTimeout)
		reverse, err = n.dialer.DialContext(revCtx, "tcp", secondaryAddr)
		revCancel()
		if err != nil {
			// Reverse-channel absence is not fatal: degrade to duplex on
			// the primary connection.
			n.log.Warn("reverse channel unavailable, continuing on primary only",
				"addr", secondaryAddr, "error", err)
			reverse = nil
		}
	}

	n.setState(transport.StateChannelOpen)
	ep := &transport.Endpoint{
		Primary: primary,
		Remote:  primaryAddr,
		Detail:  fmt.Sprintf("tcp primary=%d secondary=%d", peer.PrimaryPort, peer.SecondaryPort),
	}
	if reverse != nil {
		ep.Reverse = reverse
	}
	return ep, nil
}
