package psi

// NIT is one parsed Network Information Table section.
type NIT struct {
	Header             SectionHeader
	NetworkID          uint16 // == Header.TableIDExtension
	NetworkDescriptors []Descriptor
	TransportStreams   []NITTransportStream
}

// NITTransportStream describes one transport-stream entry in a NIT.
type NITTransportStream struct {
	TransportStreamID uint16
	OriginalNetworkID uint16
	Descriptors       []Descriptor
}

// ParseNIT parses one NIT section.
func ParseNIT(raw []byte) (*NIT, error) {
	h, body, err := ParseSectionHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.TableID != TableIDNIT {
		return nil, unsupportedTable(h.TableID)
	}
	if len(body) < 2 {
		return nil, ErrTooShort
	}

	nit := &NIT{Header: h, NetworkID: h.TableIDExtension}
	netDescLen := int(body[0]&0x0F)<<8 | int(body[1])
	off := 2
	if off+netDescLen > len(body) {
		return nil, ErrTooShort
	}
	nit.NetworkDescriptors = ParseDescriptors(body[off : off+netDescLen])
	off += netDescLen

	if off+2 > len(body) {
		return nil, ErrTooShort
	}
	tsLoopLen := int(body[off]&0x0F)<<8 | int(body[off+1])
	off += 2
	if off+tsLoopLen > len(body) {
		return nil, ErrTooShort
	}
	end := off + tsLoopLen
	for off+6 <= end {
		tsid := uint16(body[off])<<8 | uint16(body[off+1])
		onid := uint16(body[off+2])<<8 | uint16(body[off+3])
		descLen := int(body[off+4]&0x0F)<<8 | int(body[off+5])
		off += 6
		if off+descLen > end {
			return nil, ErrTooShort
		}
		nit.TransportStreams = append(nit.TransportStreams, NITTransportStream{
			TransportStreamID: tsid,
			OriginalNetworkID: onid,
			Descriptors:       ParseDescriptors(body[off : off+descLen]),
		})
		off += descLen
	}
	return nit, nil
}

// BuildNIT serializes a single-section NIT carrying exactly one
// transport-stream entry, per §4.7's minimal rewrite.
func BuildNIT(networkID uint16, version uint8, networkDescs []Descriptor, ts NITTransportStream) []byte {
	netDescBytes := WriteDescriptors(networkDescs)
	tsDescBytes := WriteDescriptors(ts.Descriptors)

	body := make([]byte, 0, 4+len(netDescBytes)+6+len(tsDescBytes))
	body = append(body, 0xF0|byte(len(netDescBytes)>>8)&0x0F, byte(len(netDescBytes)))
	body = append(body, netDescBytes...)

	tsLoopLen := 6 + len(tsDescBytes)
	body = append(body, 0xF0|byte(tsLoopLen>>8)&0x0F, byte(tsLoopLen))
	body = append(body, byte(ts.TransportStreamID>>8), byte(ts.TransportStreamID),
		byte(ts.OriginalNetworkID>>8), byte(ts.OriginalNetworkID),
		0xF0|byte(len(tsDescBytes)>>8)&0x0F, byte(len(tsDescBytes)))
	body = append(body, tsDescBytes...)

	h := SectionHeader{
		TableID:              TableIDNIT,
		TableIDExtension:     networkID,
		VersionNumber:        version,
		CurrentNextIndicator: true,
		SectionNumber:        0,
		LastSectionNumber:    0,
	}
	return BuildSection(h, body)
}
