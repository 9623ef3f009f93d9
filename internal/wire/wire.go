// Package wire implements the RokidStream frame protocol: a fixed-size
// little-endian header followed by an opaque payload, in two layouts. The
// radio layout keeps the header at 8 bytes for the low-bandwidth L2CAP path;
// the LAN layout spends 16 bytes to carry a timestamp and flags over TCP.
// Both share length semantics (payload bytes only) and the same hard bound
// on payload size.
package wire

import "fmt"

// MaxPayload is the upper bound on a frame payload. A header claiming more
// is rejected before any allocation so a corrupt or hostile length field
// cannot force a large allocation.
const MaxPayload = 1_000_000

// FrameType tags the content of a frame.
type FrameType byte

const (
	TypeVideo      FrameType = 0x01
	TypeConfig     FrameType = 0x02
	TypeControl    FrameType = 0x03
	TypeHeartbeat  FrameType = 0x04
	TypeDisconnect FrameType = 0x05
)

// String returns the frame type name for logging.
func (t FrameType) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeConfig:
		return "config"
	case TypeControl:
		return "control"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

func (t FrameType) valid() bool {
	return t >= TypeVideo && t <= TypeDisconnect
}

// HeartbeatPayload is the body of a heartbeat frame. The protocol rejects
// zero-length payloads, so liveness frames carry a single byte.
var HeartbeatPayload = []byte{0x00}

// Frame is one protocol frame. TimestampMicros, Keyframe, and
// ConfigPrepended travel on the wire only in the LAN layout; the radio
// layout drops them and the receiver reclassifies from the payload.
type Frame struct {
	Type            FrameType
	Payload         []byte
	TimestampMicros uint64
	Keyframe        bool
	ConfigPrepended bool
}

// ProtocolError reports a malformed frame. Fatal indicates the frame
// boundary itself cannot be trusted (the reader cannot find the next
// header), forcing the channel down; non-fatal violations consumed a valid
// header and the stream can continue at the next frame.
type ProtocolError struct {
	Fatal  bool
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

// Writer serializes frames onto a byte channel. Implementations flush once
// per frame: buffering within a frame is fine, holding a frame back to
// batch with the next is not.
type Writer interface {
	WriteFrame(f *Frame) error
}

// Reader deserializes frames from a byte channel.
type Reader interface {
	ReadFrame() (*Frame, error)
}

func checkPayload(f *Frame) error {
	if len(f.Payload) == 0 || len(f.Payload) > MaxPayload {
		return &ProtocolError{Fatal: false, Reason: fmt.Sprintf("payload size %d outside (0, %d]", len(f.Payload), MaxPayload)}
	}
	return nil
}
