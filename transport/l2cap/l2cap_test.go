package l2cap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zero2005x/RokidStream-sub001/internal/wire"
	"github.com/zero2005x/RokidStream-sub001/session"
	"github.com/zero2005x/RokidStream-sub001/transport"
)

// fakeDevice is a scripted GATT peer.
type fakeDevice struct {
	addr        string
	psms        map[string]uint16
	connectErr  error
	readErrs    map[string]error
	disconnects int
}

func (d *fakeDevice) Address() string { return d.addr }

func (d *fakeDevice) Connect(ctx context.Context) error { return d.connectErr }

func (d *fakeDevice) ReadPSM(ctx context.Context, characteristic string) (uint16, error) {
	if err := d.readErrs[characteristic]; err != nil {
		return 0, err
	}
	psm, ok := d.psms[characteristic]
	if !ok {
		return 0, fmt.Errorf("characteristic %s not exposed", characteristic)
	}
	return psm, nil
}

func (d *fakeDevice) Disconnect() error {
	d.disconnects++
	return nil
}

// fakeLink yields a scripted device, or blocks until cancellation.
type fakeLink struct {
	device PeerDevice
}

func (l *fakeLink) Scan(ctx context.Context) (PeerDevice, error) {
	if l.device == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return l.device, nil
}

// fakeDialer hands out in-memory pipes and can refuse specific PSMs.
type fakeDialer struct {
	refuse map[uint16]bool
	dialed []uint16
}

func (f *fakeDialer) Dial(ctx context.Context, addr string, psm uint16) (io.ReadWriteCloser, error) {
	f.dialed = append(f.dialed, psm)
	if f.refuse[psm] {
		return nil, fmt.Errorf("psm 0x%04x refused", psm)
	}
	local, remote := net.Pipe()
	go io.Copy(io.Discard, remote)
	return local, nil
}

func twoChannelDevice() *fakeDevice {
	return &fakeDevice{
		addr: "AA:BB:CC:DD:EE:FF",
		psms: map[string]uint16{
			PrimaryPSMCharacteristic:   0x0025,
			SecondaryPSMCharacteristic: 0x0026,
		},
	}
}

func TestNegotiateHandshakeSuccess(t *testing.T) {
	t.Parallel()
	dialer := &fakeDialer{}
	n := NewNegotiator(Config{
		Link:        &fakeLink{device: twoChannelDevice()},
		Dialer:      dialer,
		WantReverse: true,
	})

	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	defer ep.Close()

	require.Equal(t, transport.StateChannelOpen, n.State())
	require.Equal(t, []uint16{0x0025, 0x0026}, dialer.dialed)
	require.NotNil(t, ep.Reverse)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", ep.Remote)
}

func TestNegotiateDegradesToSendOnly(t *testing.T) {
	t.Parallel()
	dialer := &fakeDialer{refuse: map[uint16]bool{0x0026: true}}
	n := NewNegotiator(Config{
		Link:        &fakeLink{device: twoChannelDevice()},
		Dialer:      dialer,
		WantReverse: true,
	})

	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err, "reverse-channel failure must not fail negotiation")
	defer ep.Close()

	require.Nil(t, ep.Reverse)
	require.Equal(t, transport.StateChannelOpen, n.State())
}

func TestNegotiateNoSecondaryCharacteristic(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{
		addr: "AA:BB:CC:DD:EE:FF",
		psms: map[string]uint16{PrimaryPSMCharacteristic: 0x0025},
	}
	dialer := &fakeDialer{}
	n := NewNegotiator(Config{Link: &fakeLink{device: dev}, Dialer: dialer, WantReverse: true})

	ep, err := n.Negotiate(context.Background())
	require.NoError(t, err)
	defer ep.Close()

	require.Nil(t, ep.Reverse)
	require.Equal(t, []uint16{0x0025}, dialer.dialed, "must not dial a channel without an identifier")
}

func TestNegotiateDiscoveryCancelled(t *testing.T) {
	t.Parallel()
	n := NewNegotiator(Config{Link: &fakeLink{}, Dialer: &fakeDialer{}})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := n.Negotiate(ctx)
	require.Error(t, err)

	var fault *transport.Fault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, transport.FaultDiscovery, fault.Kind)
	require.Equal(t, transport.StateFailed, n.State())
}

func TestNegotiateHandshakeTimeout(t *testing.T) {
	t.Parallel()
	dev := twoChannelDevice()
	dev.connectErr = context.DeadlineExceeded
	n := NewNegotiator(Config{Link: &fakeLink{device: dev}, Dialer: &fakeDialer{}})

	_, err := n.Negotiate(context.Background())
	var fault *transport.Fault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, transport.FaultHandshakeTimeout, fault.Kind)
}

func TestSessionOverRadioHandshake(t *testing.T) {
	t.Parallel()
	n := NewNegotiator(Config{
		Link:        &fakeLink{device: twoChannelDevice()},
		Dialer:      &fakeDialer{},
		WantReverse: true,
	})
	s := session.New(n, session.WithWireFormat(wire.FormatRadio))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.Equal(t, session.StateStreaming, s.State())
}

func TestNegotiatePrimaryChannelFailure(t *testing.T) {
	t.Parallel()
	dev := twoChannelDevice()
	dialer := &fakeDialer{refuse: map[uint16]bool{0x0025: true}}
	n := NewNegotiator(Config{Link: &fakeLink{device: dev}, Dialer: dialer, WantReverse: true})

	_, err := n.Negotiate(context.Background())
	var fault *transport.Fault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, transport.FaultChannelOpen, fault.Kind)
	require.Equal(t, 1, dev.disconnects, "control connection must be torn down on failure")
}
