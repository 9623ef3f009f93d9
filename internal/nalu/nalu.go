// Package nalu classifies compressed-frame buffers by inspecting the
// NAL units inside them. It answers three questions the streaming session
// needs before a buffer touches the wire or the decoder: is this decoder
// configuration, does it carry a keyframe, and where does a configuration
// prefix end. It performs bit-field interpretation only; codec selection
// happens elsewhere.
package nalu

// Family selects the NAL header numbering scheme of the session's codec.
type Family int

const (
	// FamilyH264 reads the unit type from the low 5 bits of the header byte.
	FamilyH264 Family = iota
	// FamilyHEVC reads the unit type from bits 1-6 of the first header byte.
	FamilyHEVC
)

// H.264 NAL unit types as defined in ITU-T H.264 Table 7-1.
const (
	H264Slice = 1
	H264IDR   = 5
	H264SEI   = 6
	H264SPS   = 7
	H264PPS   = 8
	H264AUD   = 9
)

// H.265/HEVC NAL unit types as defined in ITU-T H.265 Table 7-1. Types 16-21
// (BLA through CRA) are the IRAP range, any of which starts a decodable
// sequence.
const (
	HEVCBlaWLP  = 16
	HEVCIDRRadl = 19
	HEVCIDRNlp  = 20
	HEVCCraNut  = 21
	HEVCVPS     = 32
	HEVCSPS     = 33
	HEVCPPS     = 34
)

// UnitTypeNone is returned when no start code is found within the scan bound.
const UnitTypeNone = -1

// firstTypeScanBound caps how far FirstUnitType searches for a start code.
// Encoder output always leads with a start code; this is a hot path, not a
// general parser.
const firstTypeScanBound = 100

// UnitType extracts the unit type from the first header byte under the given
// family's numbering.
func UnitType(headerByte byte, family Family) int {
	if family == FamilyHEVC {
		return int((headerByte >> 1) & 0x3F)
	}
	return int(headerByte & 0x1F)
}

// IsKeyframeUnit reports whether the unit type is a random access point:
// IDR for H.264, the IRAP range for HEVC.
func IsKeyframeUnit(unitType int, family Family) bool {
	if family == FamilyHEVC {
		return unitType >= HEVCBlaWLP && unitType <= HEVCCraNut
	}
	return unitType == H264IDR
}

// IsParameterSet reports whether the unit type is decoder configuration:
// SPS/PPS for H.264, VPS/SPS/PPS for HEVC.
func IsParameterSet(unitType int, family Family) bool {
	if family == FamilyHEVC {
		return unitType >= HEVCVPS && unitType <= HEVCPPS
	}
	return unitType == H264SPS || unitType == H264PPS
}

// Unit is one start-code-delimited NAL unit located inside a buffer.
type Unit struct {
	Type  int
	Start int // byte offset of the start code introducing this unit
	Data  int // byte offset of the first header byte
}

// ScanUnits locates every start-code-delimited unit in buf and decodes each
// unit's type under the given family. Both 3-byte (000001) and 4-byte
// (00000001) start codes are recognized, matching what hardware encoders emit.
func ScanUnits(buf []byte, family Family) []Unit {
	var units []Unit
	n := len(buf)
	i := 0
	for i < n-2 {
		if buf[i] != 0 || buf[i+1] != 0 {
			i++
			continue
		}
		if i < n-3 && buf[i+2] == 0 && buf[i+3] == 1 {
			if i+4 < n {
				units = append(units, Unit{Type: UnitType(buf[i+4], family), Start: i, Data: i + 4})
			}
			i += 4
			continue
		}
		if buf[i+2] == 1 {
			if i+3 < n {
				units = append(units, Unit{Type: UnitType(buf[i+3], family), Start: i, Data: i + 3})
			}
			i += 3
			continue
		}
		i++
	}
	return units
}

// FirstUnitType returns the type of the first unit in buf, scanning at most
// the first 100 bytes for a start code. Returns UnitTypeNone when no start
// code is found within the bound.
func FirstUnitType(buf []byte, family Family) int {
	bound := len(buf)
	if bound > firstTypeScanBound {
		bound = firstTypeScanBound
	}
	for i := 0; i+2 < bound; i++ {
		if buf[i] != 0 || buf[i+1] != 0 {
			continue
		}
		if buf[i+2] == 1 {
			if i+3 < len(buf) {
				return UnitType(buf[i+3], family)
			}
			return UnitTypeNone
		}
		if i+3 < len(buf) && buf[i+2] == 0 && buf[i+3] == 1 {
			if i+4 < len(buf) {
				return UnitType(buf[i+4], family)
			}
			return UnitTypeNone
		}
	}
	return UnitTypeNone
}

// IsConfigOnly reports whether buf leads with a parameter-set unit and
// contains no keyframe unit afterward. Such buffers are cached by the
// session rather than fed straight to a decoder.
func IsConfigOnly(buf []byte, family Family) bool {
	units := ScanUnits(buf, family)
	if len(units) == 0 || !IsParameterSet(units[0].Type, family) {
		return false
	}
	for _, u := range units[1:] {
		if IsKeyframeUnit(u.Type, family) {
			return false
		}
	}
	return true
}

// ContainsKeyframe reports whether any unit in buf is a random access point.
func ContainsKeyframe(buf []byte, family Family) bool {
	for _, u := range ScanUnits(buf, family) {
		if IsKeyframeUnit(u.Type, family) {
			return true
		}
	}
	return false
}

// SplitConfigAndKeyframe separates a parameter-set prefix from the rest of
// the buffer. Encoders may prepend SPS/PPS (and VPS for HEVC) to a keyframe
// so a peer can recover faster; the session caches the prefix separately.
// Returns (nil, buf) when buf does not lead with a parameter-set unit.
func SplitConfigAndKeyframe(buf []byte, family Family) (config, rest []byte) {
	units := ScanUnits(buf, family)
	if len(units) == 0 || !IsParameterSet(units[0].Type, family) {
		return nil, buf
	}
	for _, u := range units[1:] {
		if !IsParameterSet(u.Type, family) {
			return buf[:u.Start], buf[u.Start:]
		}
	}
	// Entire buffer is configuration.
	return buf, nil
}
