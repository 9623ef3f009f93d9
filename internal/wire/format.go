package wire

import "io"

// Format selects one of the two header layouts.
type Format int

const (
	// FormatRadio is the 8-byte header used on the L2CAP path.
	FormatRadio Format = iota
	// FormatLAN is the 16-byte header used on the TCP path.
	FormatLAN
)

// String returns the format name for logging.
func (f Format) String() string {
	if f == FormatLAN {
		return "lan"
	}
	return "radio"
}

// NewWriter returns a Writer for the given format.
func NewWriter(w io.Writer, f Format) Writer {
	if f == FormatLAN {
		return NewLANWriter(w)
	}
	return NewRadioWriter(w)
}

// NewReader returns a Reader for the given format.
func NewReader(r io.Reader, f Format) Reader {
	if f == FormatLAN {
		return NewLANReader(r)
	}
	return NewRadioReader(r)
}
