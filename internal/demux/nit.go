package demux

import (
	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// HandleNITSection feeds one raw, CRC-validated upstream NIT (actual)
// section into the NIT table cache. Unlike PAT/SDT, a completed upstream
// NIT drives no output regeneration of its own (§4.7): the outbound NIT is
// always the relay's own single-TS synthesis, rebuilt from PAT/TSID state
// by regenerateNIT. Upstream NIT content is tracked only so its version
// changes can be logged.
func (c *Context) HandleNITSection(pid uint16, raw []byte, dts int64) {
	if pid != tspacket.PIDNIT {
		return
	}
	h, _, err := psi.ParseSectionHeader(raw)
	if err != nil {
		c.log.Warn("invalid NIT section", "error", err)
		c.sendNIT(dts)
		return
	}
	if h.TableID != psi.TableIDNIT {
		return
	}

	ordered, complete := c.nitCache.Submit(h, raw)
	if complete {
		c.handleNIT(ordered, c.nitCache.PendingVersion())
	}
	c.sendNIT(dts)
}

func (c *Context) handleNIT(ordered [][]byte, version uint8) {
	if c.nitCache.Equal(ordered) {
		c.nitCache.DropPending()
		return
	}
	for _, raw := range ordered {
		if _, err := psi.ParseNIT(raw); err != nil {
			c.log.Warn("invalid NIT received", "error", err)
			c.nitCache.DropPending()
			return
		}
	}

	changed := !c.nitCache.HasCurrent || version != c.nitCache.CurrentVersion
	c.nitCache.Accept(ordered, version)
	if changed {
		c.log.Debug("upstream NIT version changed", "version", version)
	}
}
