package tspacket

// WriteOne builds a single Size-byte TS packet carrying pid/cc/pusi and up
// to Size-4 bytes of payload. Payload shorter than the available space is
// padded with a stuffing adaptation field (0xFF filler), matching how
// dvblast pads single-section PAT/PMT/SDT/NIT packets.
func WriteOne(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, Size)
	buf[0] = SyncByte

	b1 := byte(pid>>8) & 0x1F
	if pusi {
		b1 |= 0x40
	}
	buf[1] = b1
	buf[2] = byte(pid)

	avail := Size - 4
	if len(payload) > avail {
		payload = payload[:avail] // caller is responsible for chunking
	}

	stuffLen := avail - len(payload)
	offset := 4
	if stuffLen > 0 {
		buf[3] = 0x30 | (cc & 0x0F) // adaptation field + payload
		afLen := stuffLen - 1
		buf[4] = byte(afLen)
		if afLen > 0 {
			buf[5] = 0x00 // no flags set
			for i := 6; i < 6+afLen-1; i++ {
				buf[i] = 0xFF
			}
		}
		offset = 4 + stuffLen
	} else {
		buf[3] = 0x10 | (cc & 0x0F) // payload only
	}

	copy(buf[offset:], payload)
	return buf
}

// Packetize splits data (a complete PSI section, optionally preceded by a
// pointer_field byte already included by the caller) across as many
// Size-byte packets as needed, starting continuity counter at startCC and
// returning the counter to use for the packet following this run.
func Packetize(pid uint16, startCC uint8, data []byte) (packets [][]byte, nextCC uint8) {
	cc := startCC
	first := true
	for len(data) > 0 {
		n := Size - 4
		if n > len(data) {
			n = len(data)
		}
		packets = append(packets, WriteOne(pid, cc, first, data[:n]))
		data = data[n:]
		cc = ExpectedCC(cc)
		first = false
	}
	return packets, cc
}
