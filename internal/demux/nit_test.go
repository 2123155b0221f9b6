package demux

import (
	"testing"

	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

func TestHandleNITSectionAlwaysSendsTheSynthesizedNIT(t *testing.T) {
	c, sink := newTestContext(t)
	o := &Output{SID: 1, DVB: true}
	c.AddOutput(o)
	feedSection(c, tspacket.PIDPAT, psi.BuildPAT(1, 0, []psi.PATProgram{{ProgramNumber: 1, PID: 0x0100}}))

	before := len(sink.packets)
	upstream := psi.BuildNIT(9, 0, nil, psi.NITTransportStream{TransportStreamID: 1, OriginalNetworkID: 9})
	feedSection(c, tspacket.PIDNIT, upstream)

	if len(sink.packets) <= before {
		t.Errorf("HandleNITSection should forward the output's own synthesized NIT regardless of upstream content")
	}
	if sink.lastFor(o, tspacket.PIDNIT) == nil {
		t.Errorf("DVB output should have received a NIT")
	}
}

func TestHandleNITSectionIgnoresWrongPID(t *testing.T) {
	c, sink := newTestContext(t)
	upstream := psi.BuildNIT(9, 0, nil, psi.NITTransportStream{TransportStreamID: 1, OriginalNetworkID: 9})
	c.HandleNITSection(0x0020, upstream, 1000)
	if len(sink.packets) != 0 {
		t.Errorf("a section on the wrong PID must be ignored entirely")
	}
}
