package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestRadioRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewRadioWriter(&buf)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	if err := w.WriteFrame(&Frame{Type: TypeVideo, Payload: payload}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != radioHeaderLen+len(payload) {
		t.Errorf("wire size: got %d, want %d", buf.Len(), radioHeaderLen+len(payload))
	}

	f, err := NewRadioReader(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Type != TypeVideo {
		t.Errorf("type: got %v", f.Type)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("payload mismatch: %x", f.Payload)
	}
}

func TestRadioHeaderLayout(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewRadioWriter(&buf)
	if err := w.WriteFrame(&Frame{Type: TypeHeartbeat, Payload: HeartbeatPayload}); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.Bytes()
	if got := binary.LittleEndian.Uint32(raw[0:4]); got != 1 {
		t.Errorf("length field: got %d, want 1", got)
	}
	if raw[4] != byte(TypeHeartbeat) {
		t.Errorf("type field: got 0x%02x", raw[4])
	}
	if raw[5] != 0 || raw[6] != 0 || raw[7] != 0 {
		t.Error("reserved bytes must be zero")
	}
}

func TestLANRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewLANWriter(&buf)
	in := &Frame{
		Type:            TypeVideo,
		Payload:         bytes.Repeat([]byte{0x65}, 1000),
		TimestampMicros: 1234567890123,
		Keyframe:        true,
		ConfigPrepended: true,
	}
	if err := w.WriteFrame(in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != lanHeaderLen+len(in.Payload) {
		t.Errorf("wire size: got %d, want %d", buf.Len(), lanHeaderLen+len(in.Payload))
	}

	f, err := NewLANReader(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Type != in.Type || f.TimestampMicros != in.TimestampMicros {
		t.Errorf("header fields: got %+v", f)
	}
	if !f.Keyframe || !f.ConfigPrepended {
		t.Error("flag bits lost on round trip")
	}
	if !bytes.Equal(f.Payload, in.Payload) {
		t.Error("payload mismatch")
	}
}

func TestMaxPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	payload := make([]byte, MaxPayload)
	if err := NewRadioWriter(&buf).WriteFrame(&Frame{Type: TypeVideo, Payload: payload}); err != nil {
		t.Fatalf("write at MaxPayload: %v", err)
	}
	f, err := NewRadioReader(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("read at MaxPayload: %v", err)
	}
	if len(f.Payload) != MaxPayload {
		t.Errorf("payload length: got %d", len(f.Payload))
	}
}

// trackingReader fails the test if more than limit bytes are requested,
// proving an oversize header is rejected before any payload read.
type trackingReader struct {
	r    io.Reader
	read int
}

func (tr *trackingReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	tr.read += n
	return n, err
}

func TestOversizeLengthRejected(t *testing.T) {
	t.Parallel()
	var raw [radioHeaderLen]byte
	binary.LittleEndian.PutUint32(raw[0:4], MaxPayload+1)
	raw[4] = byte(TypeVideo)

	tr := &trackingReader{r: bytes.NewReader(raw[:])}
	_, err := NewRadioReader(tr).ReadFrame()

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if !pe.Fatal {
		t.Error("untrusted length must be a fatal violation")
	}
	if tr.read > radioHeaderLen {
		t.Errorf("read %d bytes past the header before rejecting", tr.read-radioHeaderLen)
	}
}

func TestZeroLengthRejected(t *testing.T) {
	t.Parallel()
	var raw [lanHeaderLen]byte
	raw[4] = byte(TypeVideo)
	_, err := NewLANReader(bytes.NewReader(raw[:])).ReadFrame()
	var pe *ProtocolError
	if !errors.As(err, &pe) || !pe.Fatal {
		t.Fatalf("expected fatal ProtocolError for zero length, got %v", err)
	}
}

func TestUnknownTypeSkippable(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	// A bogus-type frame followed by a valid one: the reader must consume
	// the bogus payload and stay in sync.
	var hdr [radioHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], 3)
	hdr[4] = 0x7F
	buf.Write(hdr[:])
	buf.Write([]byte{1, 2, 3})
	if err := NewRadioWriter(&buf).WriteFrame(&Frame{Type: TypeVideo, Payload: []byte{9}}); err != nil {
		t.Fatal(err)
	}

	r := NewRadioReader(&buf)
	_, err := r.ReadFrame()
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if pe.Fatal {
		t.Error("unknown type with valid length should be skippable")
	}

	f, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("reader lost sync after skippable violation: %v", err)
	}
	if f.Type != TypeVideo || f.Payload[0] != 9 {
		t.Errorf("resynchronized frame wrong: %+v", f)
	}
}

func TestWriterRejectsOversizePayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := NewLANWriter(&buf).WriteFrame(&Frame{Type: TypeVideo, Payload: make([]byte, MaxPayload+1)})
	if err == nil {
		t.Fatal("expected error for oversize payload")
	}
	if buf.Len() != 0 {
		t.Error("nothing may reach the wire for a rejected frame")
	}
}

func TestShortPayloadRead(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := NewRadioWriter(&buf).WriteFrame(&Frame{Type: TypeVideo, Payload: []byte{1, 2, 3, 4}}); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := NewRadioReader(bytes.NewReader(truncated)).ReadFrame()
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
