package demux

import (
	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// regeneratePAT rebuilds o's single-program PAT from the current upstream
// PAT (§4.8). The section is left nil (and picked up as an empty PAT by
// sendPAT) when o is a raw output, carries no service, or its service no
// longer appears in the upstream table.
func (c *Context) regeneratePAT(o *Output) {
	o.PATSection = nil
	o.PATVersion = psi.NextVersion(o.PATVersion)
	if o.SID == 0 || !c.patCache.HasCurrent {
		return
	}
	_, programs, err := patPrograms(c.patCache.Current)
	if err != nil {
		return
	}
	pid, ok := findProgram(programs, o.SID)
	if !ok {
		return
	}
	o.PATSection = psi.BuildPAT(o.TSID, o.PATVersion, []psi.PATProgram{{ProgramNumber: o.SID, PID: pid}})
}

// regeneratePMT rebuilds o's PMT from its service's last accepted upstream
// PMT, keeping only the elementary streams o selects (explicit PID list, or
// auto-selection per §4.9) and stripping CA descriptors whenever a CA
// coordinator is configured (§4.8).
func (c *Context) regeneratePMT(o *Output) {
	o.PMTSection = nil
	o.PMTVersion = psi.NextVersion(o.PMTVersion)
	if o.SID == 0 {
		return
	}
	svc := c.services.Find(o.SID)
	if svc == nil || svc.CurrentPMT == nil {
		return
	}
	pmt, err := psi.ParsePMT(svc.CurrentPMT)
	if err != nil {
		return
	}

	progDescs := pmt.ProgramDescriptors
	if c.caActive {
		progDescs = psi.StripCA(progDescs)
	}

	var streams []psi.PMTStream
	for _, es := range pmt.Streams {
		if !(o.HasExplicitPID(es.PID) || (o.WantsAllPIDs() && wouldBeSelected(es))) {
			continue
		}
		descs := es.Descriptors
		if c.caActive {
			descs = psi.StripCA(descs)
		}
		streams = append(streams, psi.PMTStream{StreamType: es.StreamType, PID: es.PID, Descriptors: descs})
	}

	o.PMTSection = psi.BuildPMT(o.SID, o.PMTVersion, pmt.PCRPID, progDescs, streams)
}

// regenerateSDT rebuilds o's single-service SDT from the current upstream
// SDT (§4.8). free_CA_mode is never propagated (BuildSDT always clears it).
func (c *Context) regenerateSDT(o *Output) {
	o.SDTSection = nil
	o.SDTVersion = psi.NextVersion(o.SDTVersion)
	if o.SID == 0 {
		c.emptyPATCleanup(o)
		return
	}
	if !c.sdtCache.HasCurrent {
		c.emptyPATCleanup(o)
		return
	}
	_, onid, services, err := sdtTable(c.sdtCache.Current)
	if err != nil {
		c.emptyPATCleanup(o)
		return
	}
	svc, ok := findSDTService(services, o.SID)
	if !ok {
		c.emptyPATCleanup(o)
		return
	}
	o.SDTSection = psi.BuildSDT(o.TSID, onid, o.SDTVersion, svc)
}

// emptyPATCleanup drops o's PAT once it has become an empty program loop
// and its SDT also fails to resolve (§4.8): there is no longer anything
// meaningful to advertise and an empty PAT plus no SDT looks like the
// output was never configured.
func (c *Context) emptyPATCleanup(o *Output) {
	if o.PATSection == nil {
		return
	}
	pat, err := psi.ParsePAT(o.PATSection)
	if err != nil || len(pat.Programs) != 0 {
		return
	}
	o.PATSection = nil
	o.PATVersion = psi.NextVersion(o.PATVersion)
}

// regenerateNIT rebuilds o's single-entry NIT once a valid upstream PAT has
// established a TSID for it to describe (§4.7, §8's boundary behavior: a
// SID==0 passthrough output never gets one).
func (c *Context) regenerateNIT(o *Output) {
	o.NITSection = nil
	o.NITVersion = psi.NextVersion(o.NITVersion)
	if o.SID == 0 || !c.patCache.HasCurrent {
		return
	}
	netDescs := []psi.Descriptor{psi.BuildNetworkNameDescriptor(c.opts.NetworkName)}
	ts := psi.NITTransportStream{TransportStreamID: o.TSID, OriginalNetworkID: c.opts.NetworkID}
	o.NITSection = psi.BuildNIT(c.opts.NetworkID, o.NITVersion, netDescs, ts)
}

// outputPSISection prepends a pointer_field byte to section, packetizes it
// at pid using cc (advancing it), and forwards every resulting packet to
// the sink dated dts. A nil section is a no-op.
func (c *Context) outputPSISection(o *Output, section []byte, pid uint16, cc *uint8, dts int64) {
	if section == nil {
		return
	}
	data := make([]byte, 0, 1+len(section))
	data = append(data, 0x00)
	data = append(data, section...)

	packets, next := tspacket.Packetize(pid, *cc, data)
	*cc = next
	for _, pkt := range packets {
		c.sink.Put(o, pid, pkt, dts)
	}
}

// sendPAT forwards every valid, non-passthrough output's current PAT,
// synthesizing an empty one for any output whose service has no entry in
// the current upstream PAT but an upstream PAT nonetheless exists (§4.8).
func (c *Context) sendPAT(dts int64) {
	for _, o := range c.outputs {
		if !o.Valid || o.SID == 0 {
			continue
		}
		if o.PATSection == nil && c.patCache.HasCurrent {
			o.PATVersion = psi.NextVersion(o.PATVersion)
			o.PATSection = psi.BuildPAT(o.TSID, o.PATVersion, nil)
		}
		c.outputPSISection(o, o.PATSection, tspacket.PIDPAT, &o.PATCC, dts)
	}
}

// sendPMT forwards svc's current PMT section to every valid output
// selecting it.
func (c *Context) sendPMT(svc *Service, dts int64) {
	for _, o := range c.outputs {
		if o.Valid && o.SID == svc.SID {
			c.outputPSISection(o, o.PMTSection, svc.PMTPID, &o.PMTCC, dts)
		}
	}
}

// sendSDT forwards every DVB-flagged output's current SDT.
func (c *Context) sendSDT(dts int64) {
	for _, o := range c.outputs {
		if o.Valid && o.DVB {
			c.outputPSISection(o, o.SDTSection, tspacket.PIDSDT, &o.SDTCC, dts)
		}
	}
}

// sendNIT forwards every DVB-flagged output's current NIT.
func (c *Context) sendNIT(dts int64) {
	for _, o := range c.outputs {
		if o.Valid && o.DVB {
			c.outputPSISection(o, o.NITSection, tspacket.PIDNIT, &o.NITCC, dts)
		}
	}
}
