package demux

import (
	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// sdtTable decodes and concatenates the service loops of every section of a
// complete SDT (actual), returning the transport_stream_id/original_network_id
// (shared by every section) from the first section.
func sdtTable(sections [][]byte) (tsid, onid uint16, services []psi.SDTService, err error) {
	for i, raw := range sections {
		s, err := psi.ParseSDT(raw)
		if err != nil {
			return 0, 0, nil, err
		}
		if i == 0 {
			tsid = s.TransportStreamID
			onid = s.OriginalNetworkID
		}
		services = append(services, s.Services...)
	}
	return tsid, onid, services, nil
}

func findSDTService(services []psi.SDTService, sid uint16) (psi.SDTService, bool) {
	for _, s := range services {
		if s.ServiceID == sid {
			return s, true
		}
	}
	return psi.SDTService{}, false
}

// HandleSDTSection feeds one raw, CRC-validated SDT (actual) section into
// the SDT table cache and, once a complete table has accumulated, processes
// it (§4.6). SDT other (table_id 0x46) and bouquet variants are not carried.
func (c *Context) HandleSDTSection(pid uint16, raw []byte, dts int64) {
	if pid != tspacket.PIDSDT {
		return
	}
	h, _, err := psi.ParseSectionHeader(raw)
	if err != nil {
		c.log.Warn("invalid SDT section", "error", err)
		return
	}
	if h.TableID != psi.TableIDSDT {
		return
	}

	ordered, complete := c.sdtCache.Submit(h, raw)
	if !complete {
		return
	}
	version := c.sdtCache.PendingVersion()
	c.handleSDT(ordered, version, dts)
}

// handleSDT implements §4.6's diff: every service whose entry is new, whose
// containing table version changed, or that disappeared from the table gets
// its outbound SDT regenerated.
func (c *Context) handleSDT(ordered [][]byte, version uint8, dts int64) {
	if c.sdtCache.Equal(ordered) {
		c.sdtCache.DropPending()
		c.sendSDT(dts)
		return
	}

	_, _, services, err := sdtTable(ordered)
	if err != nil {
		c.log.Warn("invalid SDT received", "error", err)
		c.sdtCache.DropPending()
		c.sendSDT(dts)
		return
	}

	hadSDT := c.sdtCache.HasCurrent
	var oldServices []psi.SDTService
	if hadSDT {
		_, _, oldServices, _ = sdtTable(c.sdtCache.Current)
	}

	isNew := !hadSDT || version != c.sdtCache.CurrentVersion
	c.sdtCache.Accept(ordered, version)

	seen := make(map[uint16]bool, len(services))
	for _, svc := range services {
		seen[svc.ServiceID] = true
		if _, existed := findSDTService(oldServices, svc.ServiceID); isNew || !existed {
			c.updateSDT(svc.ServiceID)
		}
	}

	if hadSDT {
		for _, svc := range oldServices {
			if !seen[svc.ServiceID] {
				c.updateSDT(svc.ServiceID)
			}
		}
	}

	c.sendSDT(dts)
}

// updateSDT regenerates the SDT section of every valid output selecting sid.
func (c *Context) updateSDT(sid uint16) {
	for _, o := range c.outputs {
		if o.Valid && o.SID == sid {
			c.regenerateSDT(o)
		}
	}
}
