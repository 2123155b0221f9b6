package demux

import (
	"time"

	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// Dispatch processes one batch of raw packets as they are delivered
// together by the source (e.g. one socket read), dating each with a
// wallclock timestamp linearly interpolated between the previous batch's
// arrival and arrivalWall (§4.10's CBR dating model — a source that instead
// timestamps packets itself, such as a file replayer pacing to real PCR,
// can call dispatchOne directly with its own dts per packet).
func (c *Context) Dispatch(packets [][]byte, arrivalWall int64) {
	n := len(packets)
	if n == 0 {
		c.ageEITBuffers(arrivalWall)
		c.ageWatchdog(arrivalWall)
		return
	}

	prev := c.lastBatchWall
	if prev == 0 || prev >= arrivalWall {
		prev = arrivalWall - int64(n)*int64(time.Millisecond)
	}
	step := (arrivalWall - prev) / int64(n)

	for i, raw := range packets {
		c.dispatchOne(raw, prev+step*int64(i+1))
	}
	c.lastBatchWall = arrivalWall

	c.ageEITBuffers(arrivalWall)
	c.ageWatchdog(arrivalWall)
}

// dispatchOne parses, dates and routes a single 188-byte packet: PSI PIDs
// feed the section reassembler and on to HandleSection; TDT/RST are
// forwarded verbatim to every DVB output; every packet is forwarded to
// whichever outputs currently select its PID (§4.10).
func (c *Context) dispatchOne(raw []byte, dts int64) {
	pkt, err := tspacket.Parse(raw)
	if err != nil {
		c.log.Warn("malformed TS packet", "error", err)
		return
	}
	if pkt.Header.TransportErrorIndicator {
		c.recordTEI(dts)
		return
	}

	pid := pkt.Header.PID
	if pid == tspacket.PIDPadding {
		return
	}

	c.checkContinuity(pid, pkt, dts)

	if c.pids.IsPSI(pid) {
		for _, section := range c.reassemblers.Feed(pid, pkt) {
			c.HandleSection(pid, section, dts)
		}
	}

	c.updatePCRAnchor(pid, pkt, dts)

	if pid == tspacket.PIDTDT || pid == tspacket.PIDRST {
		for _, o := range c.outputs {
			if o.Valid && o.DVB {
				c.sink.Put(o, pid, raw, dts)
			}
		}
	}

	for _, o := range c.pids.Outputs(pid) {
		if o != nil && o.Valid {
			c.checkWatch(o, pid, pkt, dts)
			c.sink.Put(o, pid, raw, dts)
		}
	}
}

// updatePCRAnchor implements §4.10 step 6: a packet carrying a PCR updates
// the pcr_anchor of every valid output currently selecting the service
// whose PMT names pid as its PCR PID. Runs strictly after PSI reassembly
// and before output forwarding, so a PMT arriving in the same packet batch
// that retargets the PCR PID is already visible to the lookup below.
func (c *Context) updatePCRAnchor(pid uint16, pkt *tspacket.Packet, dts int64) {
	if pkt.AdaptationField == nil || !pkt.AdaptationField.PCRFlag {
		return
	}
	timestamp := pkt.AdaptationField.PCR.Value27MHz()

	for _, svc := range c.services.All() {
		if svc.CurrentPMT == nil {
			continue
		}
		pmt, err := psi.ParsePMT(svc.CurrentPMT)
		if err != nil || pmt.PCRPID != pid {
			continue
		}
		for _, o := range c.outputs {
			if o.Valid && o.SID == svc.SID {
				o.PCRTimestamp = timestamp
				o.PCRWallclock = dts
			}
		}
	}
}

// checkWatch implements §4.10 step 7 / §7 item 4: when o watches a
// CA-managed stream, a unit-start packet that is scrambled, or whose
// PES-carrying PID fails PES start-code validation, counts as a
// descrambling error. Errors decay after a quiescent WatchdogWait; past
// MaxErrors they reset every output's error count and the CA coordinator.
func (c *Context) checkWatch(o *Output, pid uint16, pkt *tspacket.Packet, dts int64) {
	if !c.caActive || !o.Watch || !pkt.Header.PayloadUnitStartIndicator {
		return
	}

	bad := pkt.Header.TransportScramblingControl != 0 ||
		(c.pids.IsPES(pid) && !validPESStartCode(pkt.Payload))

	if bad {
		o.ErrorCount++
		o.LastErrorWall = dts
	} else if dts > o.LastErrorWall+c.opts.WatchdogWait.Nanoseconds() {
		o.ErrorCount = 0
	}

	if o.ErrorCount > c.opts.MaxErrors {
		for _, other := range c.outputs {
			other.ErrorCount = 0
		}
		c.log.Warn("too many descrambling errors, resetting CA", "output_sid", o.SID)
		c.ca.Reset()
	}
}

// validPESStartCode reports whether payload begins with the 3-byte PES
// start code prefix 0x00 0x00 0x01, mirroring dvblast's pes_validate. A
// payload too short to contain the prefix is treated as valid, matching
// the original's bounds check against reading past the packet.
func validPESStartCode(payload []byte) bool {
	if len(payload) < 3 {
		return true
	}
	return payload[0] == 0x00 && payload[1] == 0x00 && payload[2] == 0x01
}

// HandleSection is the central table_id dispatcher a reassembled section is
// routed through, mirroring dvblast's HandleSection.
func (c *Context) HandleSection(pid uint16, raw []byte, dts int64) {
	h, _, err := psi.ParseSectionHeader(raw)
	if err != nil {
		c.log.Warn("invalid PSI section", "pid", pid, "error", err)
		return
	}

	switch {
	case h.TableID == psi.TableIDPAT:
		c.HandlePATSection(raw, dts)
	case h.TableID == psi.TableIDPMT:
		c.HandlePMTSection(pid, raw, dts)
	case h.TableID == psi.TableIDSDT:
		c.HandleSDTSection(pid, raw, dts)
	case h.TableID == psi.TableIDNIT:
		c.HandleNITSection(pid, raw, dts)
	case psi.IsEITTableID(h.TableID):
		c.HandleEITSection(pid, raw, dts)
	}
}

// checkContinuity tracks the expected continuity_counter per PID purely
// for diagnostics: a discontinuity bumps the error counters of whatever
// outputs currently receive pid (§4.10, §7).
func (c *Context) checkContinuity(pid uint16, pkt *tspacket.Packet, dts int64) {
	if !pkt.Header.HasPayload {
		return
	}
	st := &c.cc[pid]
	if st.known && pkt.Header.ContinuityCounter != tspacket.ExpectedCC(st.last) {
		for _, o := range c.pids.Outputs(pid) {
			if o != nil && o.Valid {
				o.ErrorCount++
				o.LastErrorWall = dts
			}
		}
	}
	st.last = pkt.Header.ContinuityCounter
	st.known = true
}

// recordTEI feeds the transport-error-indicator watchdog (§4.10, §7): more
// than MaxErrors hits inside a WatchdogWait window triggers a source reset.
func (c *Context) recordTEI(dts int64) {
	if c.windowStart == 0 || time.Duration(dts-c.windowStart) > c.opts.WatchdogWait {
		c.windowStart = dts
		c.errCount = 0
	}
	c.errCount++
	c.lastErrorAt = dts

	if c.errCount > c.opts.MaxErrors {
		c.log.Warn("transport error watchdog threshold exceeded, resetting source",
			"count", c.errCount, "window", c.opts.WatchdogWait)
		if c.sourceReset != nil {
			c.sourceReset()
		}
		c.errCount = 0
		c.windowStart = 0
	}
}

// ageWatchdog decays the TEI counter once the source has been quiet for a
// full WatchdogWait, so a historical burst doesn't linger forever.
func (c *Context) ageWatchdog(now int64) {
	if c.errCount > 0 && c.lastErrorAt != 0 && time.Duration(now-c.lastErrorAt) > c.opts.WatchdogWait {
		c.errCount = 0
		c.windowStart = 0
	}
}
