package lan

import (
	"context"
	"sync"

	"github.com/zero2005x/RokidStream-sub001/transport"
)

// AcceptNegotiator adapts an Advertiser to the negotiation contract so the
// passive peer can drive a streaming session too: "discovery" is waiting
// for a peer to answer the advertisement.
type AcceptNegotiator struct {
	adv *Advertiser

	mu    sync.Mutex
	state transport.State
}

// NewAcceptNegotiator wraps an advertiser.
func NewAcceptNegotiator(adv *Advertiser) *AcceptNegotiator {
	return &AcceptNegotiator{adv: adv, state: transport.StateIdle}
}

// State returns the negotiator's current state.
func (n *AcceptNegotiator) State() transport.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *AcceptNegotiator) setState(s transport.State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Negotiate blocks until a peer connects or ctx is cancelled.
func (n *AcceptNegotiator) Negotiate(ctx context.Context) (*transport.Endpoint, error) {
	n.setState(transport.StateDiscovering)

	type result struct {
		ep  *transport.Endpoint
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		ep, err := n.adv.Accept()
		resCh <- result{ep: ep, err: err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			n.setState(transport.StateFailed)
			return nil, &transport.Fault{Kind: transport.FaultChannelOpen, Detail: "accept", Err: res.err}
		}
		n.setState(transport.StateChannelOpen)
		return res.ep, nil
	case <-ctx.Done():
		n.setState(transport.StateFailed)
		return nil, &transport.Fault{Kind: transport.FaultDiscovery, Detail: "cancelled while waiting for peer", Err: ctx.Err()}
	}
}
