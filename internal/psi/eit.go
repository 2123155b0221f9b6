package psi

import "github.com/zsiec/dvbrelay/internal/tspacket"

// EIT sections are never parsed into a typed table or cached (§3, §4.7):
// the only operations the demux core performs on them are reading the
// service_id (the table_id_extension) to route the section to the right
// outputs, and patching transport_stream_id before forwarding.

// EITServiceID returns the service_id (table_id_extension) of a raw EIT
// section, or ok=false if raw is not a well-formed EIT section.
func EITServiceID(raw []byte) (sid uint16, ok bool) {
	h, _, err := ParseSectionHeader(raw)
	if err != nil || !IsEITTableID(h.TableID) {
		return 0, false
	}
	return h.TableIDExtension, true
}

// IsEITTableID reports whether id is a present/following or schedule EIT
// table id (0x4E, 0x4F, or 0x50-0x6F).
func IsEITTableID(id uint8) bool {
	return id == 0x4E || id == 0x4F || (id >= 0x50 && id <= 0x6F)
}

// EITTransportStreamID returns the transport_stream_id field of a raw EIT
// section (the two bytes immediately following the section header), or
// ok=false if raw is too short to contain one.
func EITTransportStreamID(raw []byte) (tsid uint16, ok bool) {
	if len(raw) < 8+2 {
		return 0, false
	}
	return uint16(raw[8])<<8 | uint16(raw[9]), true
}

// RewriteEITTransportStreamID patches the transport_stream_id field of a
// raw EIT section to newTSID and recomputes its CRC32, leaving every other
// byte (including the event loop) untouched.
func RewriteEITTransportStreamID(raw []byte, newTSID uint16) []byte {
	if len(raw) < 8+4+2 {
		return raw
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	out[8] = byte(newTSID >> 8)
	out[9] = byte(newTSID)
	return tspacket.AppendCRC32(out[:len(out)-4])
}
