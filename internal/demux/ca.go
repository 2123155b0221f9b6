package demux

import "github.com/zsiec/dvbrelay/internal/psi"

// ResendCAPMTs re-issues AddPMT for every currently-selected service whose
// last accepted PMT needs descrambling, mirroring demux_ResendCAPMTs: used
// after a CA coordinator reconnects (e.g. a CAM was replugged) and needs
// its full set of active PMTs replayed (§4.4, §6).
func (c *Context) ResendCAPMTs() {
	for _, svc := range c.services.All() {
		if svc.CurrentPMT == nil || !c.sidIsSelected(svc.SID) {
			continue
		}
		pmt, err := psi.ParsePMT(svc.CurrentPMT)
		if err != nil || !pmt.NeedsDescrambling() {
			continue
		}
		c.ca.AddPMT(svc.CurrentPMT)
	}
}
