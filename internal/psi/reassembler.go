package psi

import "github.com/zsiec/dvbrelay/internal/tspacket"

// Reassembler reconstructs complete PSI/SI sections from the TS packets of
// a single PID, per spec §4.2: duplicate packets are discarded, payload-less
// packets are ignored, continuity-counter discontinuities reset the partial
// buffer, and the pointer_field is only consulted when reassembly is
// starting from empty — once under way, payload bytes are appended directly
// and sections are sliced off the running buffer as soon as section_length
// bytes are available, so several sections can complete from one packet.
//
// Grounded on the teacher's internal/mpegts/accumulator.go (CC/discontinuity
// handling) combined with other_examples' toshipp-tstools SectionDecoder
// (incremental byte-buffer section slicing), generalized from PAT/PMT-only
// to any PSI/SI table.
type Reassembler struct {
	buf    []byte
	hasCC  bool
	lastCC uint8
}

// NewReassembler returns a Reassembler with no buffered state.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed processes one TS packet belonging to this reassembler's PID and
// returns zero or more complete raw section byte slices. Returned slices
// are owned by the caller (freshly allocated, safe to retain).
func (r *Reassembler) Feed(pkt *tspacket.Packet) [][]byte {
	if !pkt.Header.HasPayload || len(pkt.Payload) == 0 {
		return nil
	}

	cc := pkt.Header.ContinuityCounter
	if r.hasCC {
		if cc == r.lastCC {
			return nil // duplicate, discard
		}
		discontinuity := pkt.AdaptationField != nil && pkt.AdaptationField.DiscontinuityIndicator
		if !discontinuity && cc != tspacket.ExpectedCC(r.lastCC) {
			discontinuity = true
		}
		if discontinuity {
			r.buf = nil
		}
	}
	r.lastCC = cc
	r.hasCC = true

	payload := pkt.Payload
	if len(r.buf) == 0 {
		if !pkt.Header.PayloadUnitStartIndicator {
			return nil // nothing to resync to
		}
		pointer := int(payload[0])
		if 1+pointer > len(payload) {
			return nil
		}
		payload = payload[1+pointer:]
	}
	r.buf = append(r.buf, payload...)

	return r.drain()
}

// drain slices complete sections off the front of the running buffer.
func (r *Reassembler) drain() [][]byte {
	var out [][]byte
	for {
		if len(r.buf) < 1 {
			return out
		}
		if r.buf[0] == 0xFF {
			r.buf = nil // stuffing, reassembly for this run is done
			return out
		}
		if len(r.buf) < 3 {
			return out
		}
		sectionLength := int(r.buf[1]&0x0F)<<8 | int(r.buf[2])
		total := 3 + sectionLength
		if len(r.buf) < total {
			return out
		}
		section := make([]byte, total)
		copy(section, r.buf[:total])
		out = append(out, section)
		r.buf = r.buf[total:]
	}
}

// Reset clears all buffered state, forcing the next packet to resync via
// its pointer_field.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.hasCC = false
}
