//go:build linux

package l2cap

import "testing"

func TestParseBDAddr(t *testing.T) {
	t.Parallel()
	addr, err := parseBDAddr("AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Kernel sockaddr order is byte-reversed.
	want := [6]byte{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	if addr != want {
		t.Errorf("got %x, want %x", addr, want)
	}
}

func TestParseBDAddrMalformed(t *testing.T) {
	t.Parallel()
	for _, bad := range []string{"", "AA:BB:CC", "AA:BB:CC:DD:EE:GG", "AABBCCDDEEFF"} {
		if _, err := parseBDAddr(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
