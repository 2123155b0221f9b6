package demux

import (
	"testing"

	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

type fakeCA struct{}

func (fakeCA) AddPMT([]byte)    {}
func (fakeCA) UpdatePMT([]byte) {}
func (fakeCA) DeletePMT([]byte) {}
func (fakeCA) Reset()           {}

func TestRegeneratePMTStripsCADescriptorsWhenCAActive(t *testing.T) {
	c := NewContext(newFakeFilterSource(), &fakeSink{}, fakeCA{}, Options{}, nil)
	o := &Output{SID: 1}
	c.AddOutput(o)

	feedSection(c, tspacket.PIDPAT, psi.BuildPAT(1, 0, []psi.PATProgram{{ProgramNumber: 1, PID: 0x0100}}))
	feedSection(c, 0x0100, psi.BuildPMT(1, 0, 0x0101,
		[]psi.Descriptor{{Tag: psi.DescTagCA, Data: []byte{0x00, 0x01, 0xE0, 0x20}}},
		[]psi.PMTStream{{
			StreamType:  0x1B,
			PID:         0x0101,
			Descriptors: []psi.Descriptor{{Tag: psi.DescTagCA, Data: []byte{0x00, 0x02, 0xE0, 0x21}}},
		}},
	))

	pmt, err := psi.ParsePMT(o.PMTSection)
	if err != nil {
		t.Fatalf("ParsePMT: %v", err)
	}
	if psi.HasCA(pmt.ProgramDescriptors) {
		t.Errorf("program-level CA descriptor should be stripped when a CA coordinator is active")
	}
	if len(pmt.Streams) != 1 || psi.HasCA(pmt.Streams[0].Descriptors) {
		t.Errorf("ES-level CA descriptor should be stripped when a CA coordinator is active")
	}
}

func TestRegeneratePMTKeepsCADescriptorsWithoutCACoordinator(t *testing.T) {
	c, _ := newTestContext(t) // nil CA coordinator -> caActive false
	o := &Output{SID: 1}
	c.AddOutput(o)

	feedSection(c, tspacket.PIDPAT, psi.BuildPAT(1, 0, []psi.PATProgram{{ProgramNumber: 1, PID: 0x0100}}))
	feedSection(c, 0x0100, psi.BuildPMT(1, 0, 0x0101, nil, []psi.PMTStream{{
		StreamType:  0x1B,
		PID:         0x0101,
		Descriptors: []psi.Descriptor{{Tag: psi.DescTagCA, Data: []byte{0x00, 0x02, 0xE0, 0x21}}},
	}}))

	pmt, err := psi.ParsePMT(o.PMTSection)
	if err != nil {
		t.Fatalf("ParsePMT: %v", err)
	}
	if !psi.HasCA(pmt.Streams[0].Descriptors) {
		t.Errorf("CA descriptors must survive untouched when no CA coordinator is configured")
	}
}

func TestRegeneratePMTKeepsOnlyExplicitlySelectedStreams(t *testing.T) {
	c, _ := newTestContext(t)
	o := &Output{SID: 1, PIDList: []uint16{0x0102}}
	c.AddOutput(o)
	c.Change(o, 1, []uint16{0x0102}, 0, false, false, false, false)

	feedSection(c, tspacket.PIDPAT, psi.BuildPAT(1, 0, []psi.PATProgram{{ProgramNumber: 1, PID: 0x0100}}))
	feedSection(c, 0x0100, psi.BuildPMT(1, 0, 0x0101, nil, []psi.PMTStream{
		{StreamType: 0x1B, PID: 0x0101},
		{StreamType: 0x0F, PID: 0x0102},
	}))

	pmt, err := psi.ParsePMT(o.PMTSection)
	if err != nil {
		t.Fatalf("ParsePMT: %v", err)
	}
	if len(pmt.Streams) != 1 || pmt.Streams[0].PID != 0x0102 {
		t.Errorf("output PMT streams = %+v, want only the explicitly listed PID 0x102", pmt.Streams)
	}
}

func TestEmptyPATCleanupDropsPATOnceSDTAlsoFailsToResolve(t *testing.T) {
	c, _ := newTestContext(t)
	o := &Output{SID: 1, DVB: true}
	c.AddOutput(o)

	// No service 1 in the upstream PAT: regeneratePAT leaves the section
	// nil and sendPAT then synthesizes an empty-program-loop PAT for it.
	c.patCache.Accept([][]byte{psi.BuildPAT(1, 0, nil)}, 0)
	c.regeneratePAT(o)
	c.sendPAT(0)
	pat, err := psi.ParsePAT(o.PATSection)
	if err != nil || len(pat.Programs) != 0 {
		t.Fatalf("sendPAT should produce an empty-program PAT, got %+v, err=%v", pat, err)
	}

	// regenerateSDT also fails to resolve service 1 (no SDT cache at
	// all): emptyPATCleanup clears the now-meaningless empty PAT.
	c.regenerateSDT(o)
	if o.PATSection != nil {
		t.Errorf("PAT section should be cleared once the service disappears and no SDT entry exists either")
	}
}

func TestOutputPSISectionAdvancesContinuityCounter(t *testing.T) {
	c, sink := newTestContext(t)
	o := &Output{SID: 1, DVB: true}
	c.AddOutput(o)

	feedSection(c, tspacket.PIDPAT, psi.BuildPAT(1, 0, []psi.PATProgram{{ProgramNumber: 1, PID: 0x0100}}))

	var ccs []uint8
	for _, p := range sink.packets {
		if p.output == o && p.pid == tspacket.PIDPAT {
			pkt, err := tspacket.Parse(p.packet)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			ccs = append(ccs, pkt.Header.ContinuityCounter)
		}
	}
	if len(ccs) == 0 {
		t.Fatalf("no output PAT packets were captured")
	}
	for i := 1; i < len(ccs); i++ {
		want := tspacket.ExpectedCC(ccs[i-1])
		if ccs[i] != want {
			t.Errorf("packet %d continuity_counter = %d, want %d", i, ccs[i], want)
		}
	}
}
