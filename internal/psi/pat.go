package psi

// PAT is one parsed Program Association Table section's program entries;
// callers merge the sections 0..last_section_number of a table into one
// logical program list via TableCache (§4.3).
type PAT struct {
	Header            SectionHeader
	TransportStreamID uint16 // == Header.TableIDExtension
	Programs          []PATProgram
}

// PATProgram maps a service_id to its PMT PID (or, for service_id 0, the
// NIT PID).
type PATProgram struct {
	ProgramNumber uint16
	PID           uint16
}

// ParsePAT parses one PAT section.
func ParsePAT(raw []byte) (*PAT, error) {
	h, body, err := ParseSectionHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.TableID != TableIDPAT {
		return nil, unsupportedTable(h.TableID)
	}

	pat := &PAT{Header: h, TransportStreamID: h.TableIDExtension}
	for i := 0; i+4 <= len(body); i += 4 {
		pat.Programs = append(pat.Programs, PATProgram{
			ProgramNumber: uint16(body[i])<<8 | uint16(body[i+1]),
			PID:           uint16(body[i+2]&0x1F)<<8 | uint16(body[i+3]),
		})
	}
	return pat, nil
}

// BuildPAT serializes a single-section PAT (outbound PATs are always a
// single program and fit in one section, per §4.8).
func BuildPAT(tsid uint16, version uint8, programs []PATProgram) []byte {
	body := make([]byte, 0, 4*len(programs))
	for _, p := range programs {
		body = append(body, byte(p.ProgramNumber>>8), byte(p.ProgramNumber),
			0xE0|byte(p.PID>>8)&0x1F, byte(p.PID))
	}
	h := SectionHeader{
		TableID:              TableIDPAT,
		TableIDExtension:     tsid,
		VersionNumber:        version,
		CurrentNextIndicator: true,
		SectionNumber:        0,
		LastSectionNumber:    0,
	}
	return BuildSection(h, body)
}
