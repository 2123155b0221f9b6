// Package tspacket implements parsing and construction of 188-byte MPEG-2
// transport stream packets: header fields, the adaptation field (including
// PCR extraction), and continuity-counter bookkeeping. It is the packet-level
// layer beneath internal/psi and internal/demux.
package tspacket

import "fmt"

const (
	// Size is the length in bytes of one MPEG-TS packet.
	Size = 188
	// SyncByte is the fixed first byte of every TS packet.
	SyncByte = 0x47

	// Reserved PIDs, per spec.
	PIDPAT     uint16 = 0x0000
	PIDNIT     uint16 = 0x0010
	PIDSDT     uint16 = 0x0011
	PIDEIT     uint16 = 0x0012
	PIDRST     uint16 = 0x0013
	PIDTDT     uint16 = 0x0014
	PIDPadding uint16 = 0x1FFF
	PIDNone    uint16 = 0x2000 // sentinel, not a valid wire PID
)

// Header holds the fixed 4-byte TS packet header fields.
type Header struct {
	TransportErrorIndicator   bool
	PayloadUnitStartIndicator bool
	TransportPriority         bool
	PID                       uint16
	TransportScramblingControl uint8
	HasAdaptationField        bool
	HasPayload                bool
	ContinuityCounter         uint8
}

// ClockReference is a 42-bit MPEG-2 clock sample: a 33-bit 90kHz base and
// a 9-bit 27MHz extension, as carried by PCR/OPCR/PTS/DTS fields.
type ClockReference struct {
	Base      int64 // 90kHz ticks
	Extension int64 // 27MHz ticks, 0-299
}

// Value27MHz returns the clock reference expressed in 27MHz ticks.
func (c ClockReference) Value27MHz() int64 {
	return c.Base*300 + c.Extension
}

// AdaptationField carries the parsed fields of a TS adaptation field that
// the demux core cares about. Stuffing and the less common optional fields
// (splice countdown, private data, extension) are not retained.
type AdaptationField struct {
	DiscontinuityIndicator bool
	RandomAccessIndicator  bool
	PCRFlag                bool
	PCR                    ClockReference
	OPCRFlag               bool
	OPCR                   ClockReference
}

// Packet is one parsed 188-byte transport stream packet.
type Packet struct {
	Header          Header
	AdaptationField *AdaptationField // nil if HasAdaptationField is false
	Payload         []byte           // nil if HasPayload is false
}

// Parse parses a single Size-byte TS packet. It does not allocate a copy of
// buf's payload bytes; callers that retain a Packet past reuse of buf must
// copy Payload themselves.
func Parse(buf []byte) (*Packet, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("tspacket: buffer is %d bytes, want %d", len(buf), Size)
	}
	if buf[0] != SyncByte {
		return nil, fmt.Errorf("tspacket: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.TransportPriority = buf[1]&0x20 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.TransportScramblingControl = buf[3] >> 6
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4

	if p.Header.HasAdaptationField {
		if offset >= Size {
			return nil, fmt.Errorf("tspacket: adaptation field flag set with no room")
		}
		afLen := int(buf[offset])
		af, err := parseAdaptationField(buf[offset : offset+1+min(afLen, Size-offset-1)])
		if err != nil {
			return nil, err
		}
		p.AdaptationField = af
		offset += 1 + afLen
		if offset > Size {
			offset = Size
		}
	}

	if p.Header.HasPayload && offset < Size {
		p.Payload = buf[offset:Size]
	}

	return p, nil
}

func parseAdaptationField(buf []byte) (*AdaptationField, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("tspacket: empty adaptation field")
	}
	length := int(buf[0])
	if length == 0 {
		return &AdaptationField{}, nil
	}
	if len(buf) < 1+1 {
		return &AdaptationField{}, nil
	}

	flags := buf[1]
	af := &AdaptationField{
		DiscontinuityIndicator: flags&0x80 != 0,
		RandomAccessIndicator:  flags&0x40 != 0,
		PCRFlag:                flags&0x10 != 0,
		OPCRFlag:               flags&0x08 != 0,
	}

	off := 2
	if af.PCRFlag && off+6 <= len(buf) {
		af.PCR = parseClockReference(buf[off : off+6])
		off += 6
	}
	if af.OPCRFlag && off+6 <= len(buf) {
		af.OPCR = parseClockReference(buf[off : off+6])
		off += 6
	}
	return af, nil
}

// parseClockReference parses a 6-byte PCR/OPCR field.
func parseClockReference(buf []byte) ClockReference {
	base := int64(buf[0])<<25 | int64(buf[1])<<17 | int64(buf[2])<<9 | int64(buf[3])<<1 | int64(buf[4]>>7)
	ext := int64(buf[4]&0x01)<<8 | int64(buf[5])
	return ClockReference{Base: base, Extension: ext}
}

// ExpectedCC returns the continuity counter that should follow cc.
func ExpectedCC(cc uint8) uint8 {
	return (cc + 1) & 0x0F
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
