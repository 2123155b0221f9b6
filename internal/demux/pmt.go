package demux

import (
	"bytes"

	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

func findStream(pmt *psi.PMT, pid uint16) *psi.PMTStream {
	if pmt == nil {
		return nil
	}
	for i := range pmt.Streams {
		if pmt.Streams[i].PID == pid {
			return &pmt.Streams[i]
		}
	}
	return nil
}

// HandlePMTSection implements §4.5: a complete, CRC-validated PMT section
// arrives whole (PMT is always single-section).
func (c *Context) HandlePMTSection(pid uint16, raw []byte, dts int64) {
	h, _, err := psi.ParseSectionHeader(raw)
	if err != nil {
		c.log.Warn("invalid PMT section", "pid", pid, "error", err)
		return
	}
	if h.TableID != psi.TableIDPMT {
		return
	}

	sid := h.TableIDExtension
	svc := c.services.Find(sid)
	if svc == nil {
		// Unwanted SID: the PMT PID is shared with a program we don't
		// follow. Silently dropped (§7 item 3).
		return
	}
	if pid != svc.PMTPID {
		c.log.Warn("invalid PMT section received on PID", "pid", pid, "sid", sid)
		return
	}

	if svc.CurrentPMT != nil && bytes.Equal(svc.CurrentPMT, raw) {
		// Identical PMT. Shortcut, but still forward downstream (§4.5).
		c.sendPMT(svc, dts)
		return
	}

	pmt, err := psi.ParsePMT(raw)
	if err != nil {
		c.log.Warn("invalid PMT section received on PID", "pid", pid, "sid", sid, "error", err)
		c.sendPMT(svc, dts)
		return
	}

	var oldPMT *psi.PMT
	if svc.CurrentPMT != nil {
		oldPMT, _ = psi.ParsePMT(svc.CurrentPMT)
	}

	needsDescrambling := pmt.NeedsDescrambling()
	neededDescrambling := oldPMT != nil && oldPMT.NeedsDescrambling()
	isSelected := c.sidIsSelected(sid)

	if isSelected && !needsDescrambling && neededDescrambling {
		c.ca.DeletePMT(svc.CurrentPMT)
	}

	isNew := oldPMT == nil || oldPMT.Header.VersionNumber != pmt.Header.VersionNumber
	changed := isNew

	if oldPMT == nil || pmt.PCRPID != oldPMT.PCRPID {
		if pmt.PCRPID != tspacket.PIDPadding && pmt.PCRPID != svc.PMTPID {
			changed = true
			c.selectPID(sid, pmt.PCRPID)
		}
	}

	for _, es := range pmt.Streams {
		if isNew || findStream(oldPMT, es.PID) == nil {
			changed = true
			if wouldBeSelected(es) {
				c.selectPID(sid, es.PID)
			}
			c.pids.SetPES(es.PID, carriesPES(es.StreamType))
		}
	}

	if oldPMT != nil {
		if oldPMT.PCRPID != pmt.PCRPID && oldPMT.PCRPID != tspacket.PIDPadding {
			if findStream(pmt, oldPMT.PCRPID) == nil {
				changed = true
				c.unselectPID(sid, oldPMT.PCRPID)
			}
		}
		for _, oldES := range oldPMT.Streams {
			if wouldBeSelected(oldES) && findStream(pmt, oldES.PID) == nil {
				changed = true
				c.unselectPID(sid, oldES.PID)
			}
		}
	}

	svc.CurrentPMT = raw

	if changed {
		if isSelected {
			if needsDescrambling && !neededDescrambling {
				c.ca.AddPMT(raw)
			} else if needsDescrambling && neededDescrambling {
				c.ca.UpdatePMT(raw)
			}
		}
		c.updatePMT(sid)
	}

	c.sendPMT(svc, dts)
}

// updatePMT regenerates the PMT section of every valid output selecting sid.
func (c *Context) updatePMT(sid uint16) {
	for _, o := range c.outputs {
		if o.Valid && o.SID == sid {
			c.regeneratePMT(o)
		}
	}
}
