package demux

import (
	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// patPrograms decodes and concatenates the program loops of every section
// of a complete PAT table, returning the transport_stream_id (shared by
// every section) from the first section.
func patPrograms(sections [][]byte) (tsid uint16, programs []psi.PATProgram, err error) {
	for i, raw := range sections {
		p, err := psi.ParsePAT(raw)
		if err != nil {
			return 0, nil, err
		}
		if i == 0 {
			tsid = p.TransportStreamID
		}
		programs = append(programs, p.Programs...)
	}
	return tsid, programs, nil
}

func findProgram(programs []psi.PATProgram, sid uint16) (pid uint16, ok bool) {
	for _, p := range programs {
		if p.ProgramNumber == sid {
			return p.PID, true
		}
	}
	return 0, false
}

// HandlePATSection feeds one raw, CRC-validated PAT section into the PAT
// table cache and, once a complete table has accumulated, processes it
// (§4.3, §4.4).
func (c *Context) HandlePATSection(raw []byte, dts int64) {
	h, _, err := psi.ParseSectionHeader(raw)
	if err != nil {
		c.log.Warn("invalid PAT section", "error", err)
		return
	}
	if h.TableID != psi.TableIDPAT {
		return
	}

	ordered, complete := c.patCache.Submit(h, raw)
	if !complete {
		return
	}
	version := c.patCache.PendingVersion()
	c.handlePAT(ordered, version, dts)
}

// handlePAT implements §4.4's six-step PAT diff once a complete candidate
// table has been assembled.
func (c *Context) handlePAT(ordered [][]byte, version uint8, dts int64) {
	if c.patCache.Equal(ordered) {
		// Identical PAT. Shortcut (§4.3, §4.4 step 1).
		c.patCache.DropPending()
		c.sendPAT(dts)
		return
	}

	tsid, programs, err := patPrograms(ordered)
	if err != nil {
		c.log.Warn("invalid PAT received", "error", err)
		c.patCache.DropPending()
		c.sendPAT(dts)
		return
	}

	hadPAT := c.patCache.HasCurrent
	var oldPrograms []psi.PATProgram
	if hadPAT {
		// oldPrograms's own validity was already established when it
		// was accepted, so a parse error here can't happen in practice.
		_, oldPrograms, _ = patPrograms(c.patCache.Current)
	}
	oldTSID := c.tsid

	c.patCache.Accept(ordered, version)

	// Step 3: TSID adoption, which forces every program to be treated
	// as moved even if its PID is unchanged (§4.4 step 4, "b_change").
	tsidChanged := !hadPAT || tsid != oldTSID
	if tsidChanged {
		c.tsid = tsid
		c.hasTSID = true
		c.updateTSID()
	}

	seen := make(map[uint16]bool, len(programs))
	for _, p := range programs {
		if p.ProgramNumber == 0 {
			if p.PID != tspacket.PIDNIT {
				c.log.Warn("NIT carried on non-standard PID", "pid", p.PID)
			}
			continue
		}
		sid := p.ProgramNumber
		seen[sid] = true

		oldPID, existed := findProgram(oldPrograms, sid)
		if !hadPAT || !existed || oldPID != p.PID || tsidChanged {
			if existed {
				c.deleteProgram(sid, oldPID)
			}
			c.selectPSI(sid, p.PID)
			c.services.Add(sid, p.PID)
			c.updatePAT(sid)
		}
	}

	if hadPAT {
		for _, p := range oldPrograms {
			if p.ProgramNumber == 0 || seen[p.ProgramNumber] {
				continue
			}
			c.deleteProgram(p.ProgramNumber, p.PID)
			c.updatePAT(p.ProgramNumber)
			c.updatePMT(p.ProgramNumber)
		}
	}

	c.sendPAT(dts)
}

// deleteProgram implements §4.4's DeleteProgram: releases the service's
// PSI/ES subscriptions, notifies CA of a pending descramble removal, and
// frees the service slot.
func (c *Context) deleteProgram(sid, pmtPID uint16) {
	c.unselectPSI(sid, pmtPID)

	svc := c.services.Find(sid)
	if svc == nil {
		return
	}
	if svc.CurrentPMT != nil {
		if pmt, err := psi.ParsePMT(svc.CurrentPMT); err == nil {
			if c.sidIsSelected(sid) && pmt.NeedsDescrambling() {
				c.ca.DeletePMT(svc.CurrentPMT)
			}
			if pmt.PCRPID != tspacket.PIDPadding && pmt.PCRPID != svc.PMTPID {
				c.unselectPID(sid, pmt.PCRPID)
			}
			for _, es := range pmt.Streams {
				if wouldBeSelected(es) {
					c.unselectPID(sid, es.PID)
				}
			}
		}
		svc.CurrentPMT = nil
	}
	c.services.Delete(sid)
}

// updateTSID implements §4.4 step 3's UpdateTSID: every non-fixed-TSID
// output adopts the new transport_stream_id and regenerates its NIT.
func (c *Context) updateTSID() {
	for _, o := range c.outputs {
		if o.Valid && !o.FixedTSID {
			o.TSID = c.tsid
			c.regenerateNIT(o)
		}
	}
}

// updatePAT regenerates the PAT section of every valid output selecting sid.
func (c *Context) updatePAT(sid uint16) {
	for _, o := range c.outputs {
		if o.Valid && o.SID == sid {
			c.regeneratePAT(o)
		}
	}
}

func (c *Context) selectPSI(sid, pid uint16) {
	c.pids.SelectPSI(c.outputs, sid, pid, c.reassemblers)
}

func (c *Context) unselectPSI(sid, pid uint16) {
	c.pids.UnselectPSI(c.outputs, sid, pid, c.reassemblers)
}

func (c *Context) selectPID(sid, pid uint16) {
	c.pids.SelectPID(c.outputs, sid, pid)
}

func (c *Context) unselectPID(sid, pid uint16) {
	c.pids.UnselectPID(c.outputs, sid, pid)
}
