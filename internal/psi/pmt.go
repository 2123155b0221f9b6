package psi

// PMT is a fully parsed Program Map Table (always a single section).
type PMT struct {
	Header             SectionHeader
	ProgramNumber      uint16 // == Header.TableIDExtension (SID)
	PCRPID             uint16
	ProgramDescriptors []Descriptor
	Streams            []PMTStream
}

// PMTStream describes one elementary stream entry in a PMT.
type PMTStream struct {
	StreamType  uint8
	PID         uint16
	Descriptors []Descriptor
}

// ParsePMT parses a complete PMT section.
func ParsePMT(raw []byte) (*PMT, error) {
	h, body, err := ParseSectionHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.TableID != TableIDPMT {
		return nil, unsupportedTable(h.TableID)
	}
	if len(body) < 4 {
		return nil, ErrTooShort
	}

	pmt := &PMT{Header: h, ProgramNumber: h.TableIDExtension}
	pmt.PCRPID = uint16(body[0]&0x1F)<<8 | uint16(body[1])
	programInfoLength := int(body[2]&0x0F)<<8 | int(body[3])
	off := 4
	if off+programInfoLength > len(body) {
		return nil, ErrTooShort
	}
	pmt.ProgramDescriptors = ParseDescriptors(body[off : off+programInfoLength])
	off += programInfoLength

	for off+5 <= len(body) {
		streamType := body[off]
		pid := uint16(body[off+1]&0x1F)<<8 | uint16(body[off+2])
		esInfoLength := int(body[off+3]&0x0F)<<8 | int(body[off+4])
		off += 5
		if off+esInfoLength > len(body) {
			return nil, ErrTooShort
		}
		pmt.Streams = append(pmt.Streams, PMTStream{
			StreamType:  streamType,
			PID:         pid,
			Descriptors: ParseDescriptors(body[off : off+esInfoLength]),
		})
		off += esInfoLength
	}

	return pmt, nil
}

// BuildPMT serializes a PMT section.
func BuildPMT(sid uint16, version uint8, pcrPID uint16, programDescs []Descriptor, streams []PMTStream) []byte {
	progDescBytes := WriteDescriptors(programDescs)

	body := make([]byte, 0, 4+len(progDescBytes)+32)
	body = append(body, 0xE0|byte(pcrPID>>8)&0x1F, byte(pcrPID))
	pil := len(progDescBytes)
	body = append(body, 0xF0|byte(pil>>8)&0x0F, byte(pil))
	body = append(body, progDescBytes...)

	for _, s := range streams {
		esBytes := WriteDescriptors(s.Descriptors)
		eil := len(esBytes)
		body = append(body, s.StreamType, 0xE0|byte(s.PID>>8)&0x1F, byte(s.PID),
			0xF0|byte(eil>>8)&0x0F, byte(eil))
		body = append(body, esBytes...)
	}

	h := SectionHeader{
		TableID:              TableIDPMT,
		TableIDExtension:     sid,
		VersionNumber:        version,
		CurrentNextIndicator: true,
		SectionNumber:        0,
		LastSectionNumber:    0,
	}
	return BuildSection(h, body)
}

// NeedsDescrambling reports whether any CA descriptor is present at the
// program level or on any elementary stream, per §4.5/§7.
func (p *PMT) NeedsDescrambling() bool {
	if HasCA(p.ProgramDescriptors) {
		return true
	}
	for _, s := range p.Streams {
		if HasCA(s.Descriptors) {
			return true
		}
	}
	return false
}
