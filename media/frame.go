// Package media defines the frame types that flow through the RokidStream
// engine, from the encoder collaborator through the wire to the decoder
// collaborator.
package media

// Queue capacities used on either side of the wire to decouple the hardware
// codec from channel I/O. Sized for bounded latency rather than completeness:
// ~3 seconds of video at 10 fps on the encoder side, a shallower buffer on
// the decoder side so stale pictures are shed before display.
const (
	EncoderQueueSize = 30
	DecoderQueueSize = 10
)

// Frame is one compressed video buffer, either produced by the local encoder
// or deserialized from the wire. Payload is owned by the Frame after
// construction and must not be mutated; producers copy on hand-off.
type Frame struct {
	Payload         []byte
	IsKeyframe      bool
	IsConfig        bool
	TimestampMicros uint64 // 0 when the producer supplied no timestamp
}

// Clone returns a deep copy of the frame. Used when a payload crosses an
// ownership boundary (encoder callback buffers are reused by the caller).
func (f Frame) Clone() Frame {
	c := f
	c.Payload = make([]byte, len(f.Payload))
	copy(c.Payload, f.Payload)
	return c
}

// CodecConfig holds the most recently observed decoder configuration bytes
// (parameter-set units). At most one is current per session; new config
// replaces, never appends.
type CodecConfig struct {
	Data []byte
}

// Empty reports whether no configuration has been captured yet.
func (c CodecConfig) Empty() bool { return len(c.Data) == 0 }

// Set replaces the cached configuration with a copy of data.
func (c *CodecConfig) Set(data []byte) {
	c.Data = make([]byte, len(data))
	copy(c.Data, data)
}

// Reset discards the cached configuration.
func (c *CodecConfig) Reset() { c.Data = nil }

// Prepend returns payload with the cached configuration bytes attached in
// front. When no configuration is cached the payload is returned unchanged.
func (c CodecConfig) Prepend(payload []byte) []byte {
	if c.Empty() {
		return payload
	}
	out := make([]byte, 0, len(c.Data)+len(payload))
	out = append(out, c.Data...)
	return append(out, payload...)
}
