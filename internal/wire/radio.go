package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Radio layout: [length u32][type u8][reserved u8x3] + payload.
const radioHeaderLen = 8

type radioWriter struct {
	bw *bufio.Writer
}

// NewRadioWriter returns a Writer emitting the 8-byte radio header layout.
func NewRadioWriter(w io.Writer) Writer {
	return &radioWriter{bw: bufio.NewWriter(w)}
}

func (rw *radioWriter) WriteFrame(f *Frame) error {
	if err := checkPayload(f); err != nil {
		return err
	}
	var hdr [radioHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(f.Payload)))
	hdr[4] = byte(f.Type)
	if _, err := rw.bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := rw.bw.Write(f.Payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	// One flush per frame bounds the latency this layer adds.
	if err := rw.bw.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

type radioReader struct {
	r io.Reader
}

// NewRadioReader returns a Reader for the 8-byte radio header layout.
func NewRadioReader(r io.Reader) Reader {
	return &radioReader{r: r}
}

func (rr *radioReader) ReadFrame() (*Frame, error) {
	var hdr [radioHeaderLen]byte
	if _, err := io.ReadFull(rr.r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	length := binary.LittleEndian.Uint32(hdr[0:4])
	if length == 0 || length > MaxPayload {
		// The claimed length cannot be trusted, so neither can the next
		// frame boundary.
		return nil, &ProtocolError{Fatal: true, Reason: fmt.Sprintf("header length %d outside (0, %d]", length, MaxPayload)}
	}
	frameType := FrameType(hdr[4])

	payload := make([]byte, length)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if !frameType.valid() {
		// Header was well-formed and the payload fully consumed; the
		// stream stays in sync and the caller may skip this frame.
		return nil, &ProtocolError{Fatal: false, Reason: fmt.Sprintf("unknown frame type 0x%02x", hdr[4])}
	}
	return &Frame{Type: frameType, Payload: payload}, nil
}
