package lan

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zero2005x/RokidStream-sub001/transport"
)

// staticResolver resolves immediately to a fixed peer.
type staticResolver struct {
	peer Peer
}

func (s *staticResolver) Lookup(ctx context.Context) (Peer, error) {
	return s.peer, nil
}

// blockedResolver never resolves; it models an empty network.
type blockedResolver struct{}

func (b *blockedResolver) Lookup(ctx context.Context) (Peer, error) {
	<-ctx.Done()
	return Peer{}, ctx.Err()
}

func tcpPort(t *testing.T, l net.Listener) int {
	t.Helper()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNegotiateOpensBothChannels(t *testing.T) {
	t.Parallel()
	primary, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer primary.Close()
	secondary, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer secondary.Close()

	go func() {
		c, _ := primary.Accept()
		if c != nil {
			defer c.Close()
		}
		c2, _ := secondary.Accept()
		if c2 != nil {
			defer c2.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}()

	n := NewNegotiator(Config{
		Resolver: &staticResolver{peer: Peer{
			Host:          "127.0.0.1",
			PrimaryPort:   tcpPort(t, primary),
			SecondaryPort: tcpPort(t, secondary),
		}},
		WantReverse: true,
	})

	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	defer ep.Close()

	require.NotNil(t, ep.Primary)
	require.NotNil(t, ep.Reverse)
	require.Equal(t, transport.StateChannelOpen, n.State())
}

func TestNegotiateDegradesWithoutSecondary(t *testing.T) {
	t.Parallel()
	primary, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer primary.Close()

	// Reserve a port, then close it so the secondary dial is refused.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadPort := tcpPort(t, dead)
	dead.Close()

	go func() {
		c, _ := primary.Accept()
		if c != nil {
			defer c.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}()

	n := NewNegotiator(Config{
		Resolver: &staticResolver{peer: Peer{
			Host:          "127.0.0.1",
			PrimaryPort:   tcpPort(t, primary),
			SecondaryPort: deadPort,
		}},
		WantReverse: true,
	})

	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err, "reverse-channel absence must not fail negotiation")
	defer ep.Close()

	require.NotNil(t, ep.Primary)
	require.Nil(t, ep.Reverse)
	// Receive falls back to the duplex primary channel.
	require.Equal(t, ep.Primary, ep.ReceiveChannel())
}

func TestNegotiateDiscoveryFailure(t *testing.T) {
	t.Parallel()
	n := NewNegotiator(Config{Resolver: &blockedResolver{}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := n.Negotiate(ctx)
	require.Error(t, err)

	var fault *transport.Fault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, transport.FaultDiscovery, fault.Kind)
	require.Equal(t, transport.StateFailed, n.State())
}

func TestNegotiateRetryAfterFailure(t *testing.T) {
	t.Parallel()
	primary, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer primary.Close()
	go func() {
		for {
			c, aerr := primary.Accept()
			if aerr != nil {
				return
			}
			defer c.Close()
		}
	}()

	res := &staticResolver{peer: Peer{Host: "127.0.0.1", PrimaryPort: tcpPort(t, primary)}}
	n := NewNegotiator(Config{Resolver: &blockedResolver{}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err = n.Negotiate(ctx)
	cancel()
	require.Error(t, err)

	// Swap in a working resolver and retry on the same negotiator.
	n.cfg.Resolver = res
	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	ep.Close()
	require.Equal(t, transport.StateChannelOpen, n.State())
}

func TestAdvertiseTXTRoundTrip(t *testing.T) {
	t.Parallel()
	require.Nil(t, AdvertiseTXT(0))
	require.Equal(t, []string{"reverse=52001"}, AdvertiseTXT(52001))
}
