package psi

import (
	"testing"

	"github.com/zsiec/dvbrelay/internal/tspacket"
)

func mustPacket(t *testing.T, pusi bool, cc uint8, payload []byte) *tspacket.Packet {
	t.Helper()
	raw := tspacket.WriteOne(0x0020, cc, pusi, payload)
	pkt, err := tspacket.Parse(raw)
	if err != nil {
		t.Fatalf("tspacket.Parse: %v", err)
	}
	return pkt
}

func TestReassemblerSingleSectionInOnePacket(t *testing.T) {
	section := BuildPAT(1, 0, []PATProgram{{ProgramNumber: 1, PID: 0x0100}})

	payload := append([]byte{0x00}, section...) // pointer_field = 0
	r := NewReassembler()
	got := r.Feed(mustPacket(t, true, 0, payload))

	if len(got) != 1 {
		t.Fatalf("got %d sections, want 1", len(got))
	}
	pat, err := ParsePAT(got[0])
	if err != nil {
		t.Fatalf("ParsePAT: %v", err)
	}
	if len(pat.Programs) != 1 || pat.Programs[0].PID != 0x0100 {
		t.Errorf("round-tripped PAT = %+v", pat)
	}
}

func TestReassemblerSplitsAcrossTwoPackets(t *testing.T) {
	streams := make([]PMTStream, 0, 40)
	for i := 0; i < 40; i++ {
		streams = append(streams, PMTStream{StreamType: 0x1B, PID: uint16(0x100 + i)})
	}
	section := BuildPMT(1, 0, 0x0100, nil, streams)
	if len(section) <= tspacket.Size-4 {
		t.Fatalf("test section too small to require splitting: %d bytes", len(section))
	}

	payload := append([]byte{0x00}, section...)
	r := NewReassembler()

	first := payload[:tspacket.Size-4]
	rest := payload[tspacket.Size-4:]

	if got := r.Feed(mustPacket(t, true, 0, first)); len(got) != 0 {
		t.Fatalf("first packet alone should not complete the section, got %d", len(got))
	}

	got := r.Feed(mustPacket(t, false, 1, rest))
	if len(got) != 1 {
		t.Fatalf("got %d sections after the second packet, want 1", len(got))
	}
	pmt, err := ParsePMT(got[0])
	if err != nil {
		t.Fatalf("ParsePMT: %v", err)
	}
	if len(pmt.Streams) != len(streams) {
		t.Errorf("got %d streams, want %d", len(pmt.Streams), len(streams))
	}
}

func TestReassemblerDiscardsDuplicatePacket(t *testing.T) {
	section := BuildPAT(1, 0, nil)
	payload := append([]byte{0x00}, section...)
	r := NewReassembler()

	r.Feed(mustPacket(t, true, 0, payload))
	got := r.Feed(mustPacket(t, true, 0, payload)) // same CC: duplicate
	if len(got) != 0 {
		t.Fatalf("duplicate packet produced %d sections, want 0", len(got))
	}
}

func TestReassemblerResetsOnDiscontinuity(t *testing.T) {
	streams := make([]PMTStream, 0, 40)
	for i := 0; i < 40; i++ {
		streams = append(streams, PMTStream{StreamType: 0x1B, PID: uint16(0x100 + i)})
	}
	section := BuildPMT(1, 0, 0x0100, nil, streams)
	payload := append([]byte{0x00}, section...)

	first := payload[:tspacket.Size-4]

	r := NewReassembler()
	r.Feed(mustPacket(t, true, 0, first))

	// Continuity counter jumps from 0 straight to 5: a discontinuity, not
	// just the next expected counter (1). The partial buffer must be
	// dropped rather than corrupted with the wrong continuation bytes.
	full := BuildPAT(2, 0, []PATProgram{{ProgramNumber: 2, PID: 0x0200}})
	restart := append([]byte{0x00}, full...)
	got := r.Feed(mustPacket(t, true, 5, restart))
	if len(got) != 1 {
		t.Fatalf("got %d sections after discontinuity+restart, want 1", len(got))
	}
	pat, err := ParsePAT(got[0])
	if err != nil {
		t.Fatalf("ParsePAT: %v", err)
	}
	if len(pat.Programs) != 1 || pat.Programs[0].ProgramNumber != 2 {
		t.Errorf("expected the fresh PAT after discontinuity, got %+v", pat)
	}
}

func TestReassemblerResetClearsState(t *testing.T) {
	section := BuildPAT(1, 0, nil)
	payload := append([]byte{0x00}, section...)
	r := NewReassembler()
	r.Feed(mustPacket(t, true, 0, payload))
	r.Reset()

	// After Reset, a packet with PUSI unset has nothing to resync to.
	got := r.Feed(mustPacket(t, false, 1, []byte{0x00, 0x00}))
	if len(got) != 0 {
		t.Fatalf("got %d sections after Reset with no PUSI packet, want 0", len(got))
	}
}
