package demux

import (
	"time"

	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// HandleEITSection routes one raw, CRC-validated EIT section to every
// DVB-flagged output of the service it names (§4.7). EIT is never cached or
// diffed: every valid section is forwarded, with its transport_stream_id
// rewritten to the receiving output's TSID when the two differ.
func (c *Context) HandleEITSection(pid uint16, raw []byte, dts int64) {
	if pid != tspacket.PIDEIT {
		return
	}
	h, _, err := psi.ParseSectionHeader(raw)
	if err != nil || !psi.IsEITTableID(h.TableID) {
		c.log.Warn("invalid EIT section", "error", err)
		return
	}

	sid := h.TableIDExtension
	svc := c.services.Find(sid)
	if svc == nil {
		// Not a program we carry; silently dropped (§7 item 3).
		return
	}

	schedule := psi.IsEITScheduleTableID(h.TableID)
	srcTSID, _ := psi.EITTransportStreamID(raw)

	for _, o := range c.outputs {
		if !o.Valid || !o.DVB || o.SID != sid {
			continue
		}
		if schedule && !o.EPG {
			continue
		}
		section := raw
		if srcTSID != o.TSID {
			section = psi.RewriteEITTransportStreamID(raw, o.TSID)
		}
		c.bufferEIT(o, section, dts)
	}
}

// bufferEIT appends section to o's pending EIT run. The run is held open,
// waiting for the next section to extend it, once it holds more than one
// section header's worth of bytes (MinSectionFragment) in the last,
// partially-filled TS packet; otherwise there's too little committed to be
// worth holding open and it's flushed (padded) right away. It is also
// flushed once it has aged past MaxEITRetention regardless (§4.7, §12
// item 3).
func (c *Context) bufferEIT(o *Output, section []byte, dts int64) {
	if len(o.EITTSBuffer) == 0 {
		o.EITBufferedAt = dts
	}
	o.EITTSBuffer = append(o.EITTSBuffer, section...)

	const payloadPerPacket = tspacket.Size - 4
	total := 1 + len(o.EITTSBuffer) // +1 for the run's single leading pointer_field byte
	committed := total % payloadPerPacket

	aged := o.EITBufferedAt != 0 && time.Duration(dts-o.EITBufferedAt) >= c.opts.MaxEITRetention
	if committed <= c.opts.MinSectionFragment || aged {
		c.flushEIT(o, dts)
	}
}

// flushEIT packetizes and sends whatever is currently buffered for o,
// regardless of how little room is left in the final packet.
func (c *Context) flushEIT(o *Output, dts int64) {
	if len(o.EITTSBuffer) == 0 {
		return
	}
	data := make([]byte, 0, 1+len(o.EITTSBuffer))
	data = append(data, 0x00) // pointer_field
	data = append(data, o.EITTSBuffer...)

	packets, next := tspacket.Packetize(tspacket.PIDEIT, o.EITCC, data)
	o.EITCC = next
	for _, pkt := range packets {
		c.sink.Put(o, tspacket.PIDEIT, pkt, dts)
	}
	o.EITTSBuffer = nil
	o.EITBufferedAt = 0
}

// ageEITBuffers flushes any output's EIT run that has sat open past
// MaxEITRetention without a new section arriving to extend it. Called once
// per dispatched batch so a buffer ages out even with no further EIT input.
func (c *Context) ageEITBuffers(now int64) {
	for _, o := range c.outputs {
		if len(o.EITTSBuffer) == 0 {
			continue
		}
		if time.Duration(now-o.EITBufferedAt) >= c.opts.MaxEITRetention {
			c.flushEIT(o, now)
		}
	}
}
