package psi

// SDT is one parsed Service Description Table section.
type SDT struct {
	Header            SectionHeader
	TransportStreamID uint16 // == Header.TableIDExtension
	OriginalNetworkID uint16
	Services          []SDTService
}

// SDTService describes one service entry in an SDT.
type SDTService struct {
	ServiceID               uint16
	EITScheduleFlag         bool
	EITPresentFollowingFlag bool
	RunningStatus           uint8
	FreeCAMode              bool
	Descriptors             []Descriptor
}

// ParseSDT parses one SDT section.
func ParseSDT(raw []byte) (*SDT, error) {
	h, body, err := ParseSectionHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.TableID != TableIDSDT {
		return nil, unsupportedTable(h.TableID)
	}
	if len(body) < 3 {
		return nil, ErrTooShort
	}

	sdt := &SDT{
		Header:            h,
		TransportStreamID: h.TableIDExtension,
		OriginalNetworkID: uint16(body[0])<<8 | uint16(body[1]),
	}

	off := 3 // skip original_network_id(2) + reserved_future_use(1)
	for off+5 <= len(body) {
		sid := uint16(body[off])<<8 | uint16(body[off+1])
		flags := body[off+2]
		loopLenHi := body[off+3]
		loopLen := int(loopLenHi&0x0F)<<8 | int(body[off+4])
		off += 5
		if off+loopLen > len(body) {
			return nil, ErrTooShort
		}
		sdt.Services = append(sdt.Services, SDTService{
			ServiceID:               sid,
			EITScheduleFlag:         flags&0x02 != 0,
			EITPresentFollowingFlag: flags&0x01 != 0,
			RunningStatus:           loopLenHi >> 5,
			FreeCAMode:              loopLenHi&0x10 != 0,
			Descriptors:             ParseDescriptors(body[off : off+loopLen]),
		})
		off += loopLen
	}
	return sdt, nil
}

// BuildSDT serializes a single-service SDT section (outbound SDTs mirror
// exactly one service, per §4.8).
func BuildSDT(tsid, onid uint16, version uint8, svc SDTService) []byte {
	body := make([]byte, 0, 16)
	body = append(body, byte(onid>>8), byte(onid), 0xFF) // reserved_future_use all-ones

	descBytes := WriteDescriptors(svc.Descriptors)
	loopLen := len(descBytes)

	flags := byte(0xFC) // reserved(6 bits) = all ones
	if svc.EITScheduleFlag {
		flags |= 0x02
	}
	if svc.EITPresentFollowingFlag {
		flags |= 0x01
	}

	b4 := (svc.RunningStatus&0x07)<<5 | byte(loopLen>>8)&0x0F
	// free_CA_mode is never set on outbound SDTs, per §4.8/§8.

	body = append(body, byte(svc.ServiceID>>8), byte(svc.ServiceID), flags, b4, byte(loopLen))
	body = append(body, descBytes...)

	h := SectionHeader{
		TableID:              TableIDSDT,
		TableIDExtension:     tsid,
		VersionNumber:        version,
		CurrentNextIndicator: true,
		SectionNumber:        0,
		LastSectionNumber:    0,
	}
	return BuildSection(h, body)
}
