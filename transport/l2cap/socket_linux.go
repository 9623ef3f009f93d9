//go:build linux

package l2cap

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SocketDialer opens L2CAP connection-oriented channels through the kernel
// Bluetooth stack.
type SocketDialer struct {
	// AddrType is the LE address type for the remote device.
	// Defaults to public.
	AddrType uint8
}

// NewSocketDialer returns the production ChannelDialer.
func NewSocketDialer() *SocketDialer {
	return &SocketDialer{AddrType: unix.BDADDR_LE_PUBLIC}
}

// Dial connects to addr ("AA:BB:CC:DD:EE:FF") on the given PSM.
func (d *SocketDialer) Dial(ctx context.Context, addr string, psm uint16) (io.ReadWriteCloser, error) {
	bdaddr, err := parseBDAddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("l2cap socket: %w", err)
	}

	sa := &unix.SockaddrL2{
		PSM:      psm,
		Addr:     bdaddr,
		AddrType: d.AddrType,
	}

	// Run the blocking connect on its own goroutine so ctx cancellation
	// can abort it by closing the socket.
	connErr := make(chan error, 1)
	go func() { connErr <- unix.Connect(fd, sa) }()

	select {
	case err = <-connErr:
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("l2cap connect %s psm 0x%04x: %w", addr, psm, err)
		}
	case <-ctx.Done():
		unix.Close(fd)
		<-connErr
		return nil, ctx.Err()
	}

	return &l2capConn{fd: fd}, nil
}

// l2capConn wraps a connected L2CAP socket. Close shuts the socket down
// first so a pump blocked in Read or Write is unblocked with an error.
type l2capConn struct {
	fd int
}

func (c *l2capConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	if err != nil {
		return 0, fmt.Errorf("l2cap read: %w", err)
	}
	return n, nil
}

func (c *l2capConn) Write(p []byte) (int, error) {
	n, err := unix.Write(c.fd, p)
	if err != nil {
		return n, fmt.Errorf("l2cap write: %w", err)
	}
	return n, nil
}

func (c *l2capConn) Close() error {
	unix.Shutdown(c.fd, unix.SHUT_RDWR)
	return unix.Close(c.fd)
}

// parseBDAddr converts a colon-separated Bluetooth address into the
// byte-reversed form the kernel expects.
func parseBDAddr(addr string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(addr, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("malformed device address %q", addr)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("malformed device address %q: %w", addr, err)
		}
		out[5-i] = byte(v)
	}
	return out, nil
}
