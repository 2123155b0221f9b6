package demux

import (
	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// wantedPIDs computes the set of PIDs output o would subscribe to for sid:
// its explicit PID list verbatim, or, in auto-select mode, the PCR PID (if
// distinct from the PMT PID) plus every ES wouldBeSelected picks from the
// service's last accepted PMT (§4.9, mirrors dvblast's GetPIDS).
func (c *Context) wantedPIDs(sid uint16, pidList []uint16) map[uint16]bool {
	set := make(map[uint16]bool, len(pidList))
	if len(pidList) > 0 {
		for _, p := range pidList {
			set[p] = true
		}
		return set
	}

	svc := c.services.Find(sid)
	if svc == nil || svc.CurrentPMT == nil {
		return set
	}
	pmt, err := psi.ParsePMT(svc.CurrentPMT)
	if err != nil {
		return set
	}
	if pmt.PCRPID != tspacket.PIDPadding && pmt.PCRPID != svc.PMTPID {
		set[pmt.PCRPID] = true
	}
	for _, es := range pmt.Streams {
		if wouldBeSelected(es) {
			set[es.PID] = true
		}
	}
	return set
}

// Change reconfigures output o to carry service sid with PID list pidList,
// TSID tsid (pinned if fixedTSID), and the given DVB/EPG/watch flags
// (§4.11). It
// diffs the PID set o actually needs before and after, issuing the minimal
// StopPID/StartPID calls, moves the PSI subscription and CA registration
// between services when sid changes, and regenerates exactly the PSI
// sections the resulting sid/tsid/pid change affects — mirroring
// demux_Change's out_change dispatch: a sid change regenerates all four
// tables, a tsid change (alone) regenerates SDT/NIT/PAT, and a pid change
// (alone) regenerates only the PMT. Calling Change twice with identical
// arguments regenerates nothing and leaves every version counter untouched.
func (c *Context) Change(o *Output, sid uint16, pidList []uint16, tsid uint16, fixedTSID, dvb, epg, watch bool) {
	oldSID := o.SID
	oldWanted := c.wantedPIDs(oldSID, o.PIDList)

	sidChanged := sid != oldSID

	tsidChanged := false
	if fixedTSID {
		if !o.FixedTSID || o.TSID != tsid {
			tsidChanged = true
		}
		o.TSID = tsid
	} else if o.FixedTSID {
		tsidChanged = true
		if c.hasTSID {
			o.TSID = c.tsid
		}
	}

	o.SID = sid
	o.PIDList = pidList
	o.FixedTSID = fixedTSID
	o.DVB = dvb
	o.EPG = epg
	o.Watch = watch

	// The PMT PID's psi_refcount is owned exclusively by the PAT handler's
	// once-per-service SelectPSI/UnselectPSI (§4.4); a per-output SID
	// change only adds or drops this one output's raw filter interest in
	// that PID, mirroring demux_Change's direct SetPID/UnsetPID calls.
	if oldSID != sid {
		if oldSID != 0 {
			if oldSvc := c.services.Find(oldSID); oldSvc != nil {
				c.pids.Release(oldSvc.PMTPID)
				if !c.sidIsSelected(oldSID) && oldSvc.CurrentPMT != nil {
					if pmt, err := psi.ParsePMT(oldSvc.CurrentPMT); err == nil && pmt.NeedsDescrambling() {
						c.ca.DeletePMT(oldSvc.CurrentPMT)
					}
				}
			}
		}
		if sid != 0 {
			if newSvc := c.services.Find(sid); newSvc != nil {
				c.pids.Retain(newSvc.PMTPID)
				if newSvc.CurrentPMT != nil {
					if pmt, err := psi.ParsePMT(newSvc.CurrentPMT); err == nil && pmt.NeedsDescrambling() {
						c.ca.AddPMT(newSvc.CurrentPMT)
					}
				}
			}
		}
	}

	newWanted := c.wantedPIDs(sid, pidList)
	pidChanged := false
	for pid := range oldWanted {
		if oldSID == sid && newWanted[pid] {
			continue
		}
		c.pids.StopPID(o, pid)
		pidChanged = true
	}
	for pid := range newWanted {
		if oldSID == sid && oldWanted[pid] {
			continue
		}
		c.pids.StartPID(o, pid)
		pidChanged = true
	}

	switch {
	case sidChanged:
		c.regenerateSDT(o)
		c.regenerateNIT(o)
		c.regeneratePAT(o)
		c.regeneratePMT(o)
	case tsidChanged:
		c.regenerateSDT(o)
		c.regenerateNIT(o)
		c.regeneratePAT(o)
	case pidChanged:
		c.regeneratePMT(o)
	}
}
