//go:build !linux

package l2cap

import (
	"context"
	"errors"
	"io"
)

// SocketDialer is only implemented on Linux, where the kernel exposes
// L2CAP connection-oriented channels as sockets.
type SocketDialer struct {
	AddrType uint8
}

// NewSocketDialer returns a dialer whose Dial always fails on this platform.
func NewSocketDialer() *SocketDialer {
	return &SocketDialer{}
}

// Dial is unsupported off Linux.
func (d *SocketDialer) Dial(ctx context.Context, addr string, psm uint16) (io.ReadWriteCloser, error) {
	return nil, errors.New("l2cap data channels require linux")
}
