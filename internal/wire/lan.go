package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// LAN layout: [length u32][type u8][timestamp u64][flags u8][reserved u16]
// + payload.
const lanHeaderLen = 16

// LAN header flag bits.
const (
	lanFlagKeyframe        = 1 << 0
	lanFlagConfigPrepended = 1 << 1
)

type lanWriter struct {
	bw *bufio.Writer
}

// NewLANWriter returns a Writer emitting the 16-byte LAN header layout.
func NewLANWriter(w io.Writer) Writer {
	return &lanWriter{bw: bufio.NewWriter(w)}
}

func (lw *lanWriter) WriteFrame(f *Frame) error {
	if err := checkPayload(f); err != nil {
		return err
	}
	var hdr [lanHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(f.Payload)))
	hdr[4] = byte(f.Type)
	binary.LittleEndian.PutUint64(hdr[5:13], f.TimestampMicros)
	var flags byte
	if f.Keyframe {
		flags |= lanFlagKeyframe
	}
	if f.ConfigPrepended {
		flags |= lanFlagConfigPrepended
	}
	hdr[13] = flags
	if _, err := lw.bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := lw.bw.Write(f.Payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := lw.bw.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

type lanReader struct {
	r io.Reader
}

// NewLANReader returns a Reader for the 16-byte LAN header layout.
func NewLANReader(r io.Reader) Reader {
	return &lanReader{r: r}
}

func (lr *lanReader) ReadFrame() (*Frame, error) {
	var hdr [lanHeaderLen]byte
	if _, err := io.ReadFull(lr.r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	length := binary.LittleEndian.Uint32(hdr[0:4])
	if length == 0 || length > MaxPayload {
		return nil, &ProtocolError{Fatal: true, Reason: fmt.Sprintf("header length %d outside (0, %d]", length, MaxPayload)}
	}
	frameType := FrameType(hdr[4])
	ts := binary.LittleEndian.Uint64(hdr[5:13])
	flags := hdr[13]

	payload := make([]byte, length)
	if _, err := io.ReadFull(lr.r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if !frameType.valid() {
		return nil, &ProtocolError{Fatal: false, Reason: fmt.Sprintf("unknown frame type 0x%02x", hdr[4])}
	}
	return &Frame{
		Type:            frameType,
		Payload:         payload,
		TimestampMicros: ts,
		Keyframe:        flags&lanFlagKeyframe != 0,
		ConfigPrepended: flags&lanFlagConfigPrepended != 0,
	}, nil
}
