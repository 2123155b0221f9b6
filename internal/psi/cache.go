package psi

import "bytes"

// TableCache implements the current/next multi-section table state machine
// of §4.3 for PAT, NIT and SDT (EIT is never cached — §3, §4.7). A section
// is only accumulated into the "next" table while building if its
// current_next_indicator is set; once every section 0..last_section_number
// has arrived, Submit reports the table complete and the caller (a PAT/
// NIT/SDT handler) decides whether it differs from Current before calling
// Accept to promote it.
type TableCache struct {
	Current        [][]byte // ordered sections 0..last of the accepted table; nil if none yet
	CurrentVersion uint8
	HasCurrent     bool

	pending map[uint8][]byte
	pendingLast    uint8
	pendingVersion uint8
	pendingHasLast bool
}

// NewTableCache returns an empty cache.
func NewTableCache() *TableCache {
	return &TableCache{}
}

// Submit feeds one raw, already CRC-validated section whose table_id the
// caller has confirmed belongs to this cache. It returns the ordered
// section list of the newly-completed table once every section has
// arrived, and true; otherwise it returns nil, false.
func (c *TableCache) Submit(h SectionHeader, raw []byte) ([][]byte, bool) {
	if !h.CurrentNextIndicator {
		return nil, false
	}

	if c.pending == nil || h.VersionNumber != c.pendingVersion {
		c.pending = make(map[uint8][]byte)
		c.pendingVersion = h.VersionNumber
		c.pendingHasLast = false
	}
	c.pending[h.SectionNumber] = raw
	c.pendingLast = h.LastSectionNumber
	c.pendingHasLast = true

	if !c.pendingHasLast {
		return nil, false
	}
	for i := uint8(0); i <= c.pendingLast; i++ {
		if _, ok := c.pending[i]; !ok {
			return nil, false
		}
	}

	ordered := make([][]byte, c.pendingLast+1)
	for i := range ordered {
		ordered[i] = c.pending[uint8(i)]
	}
	return ordered, true
}

// PendingVersion returns the version_number of the most recently submitted
// (possibly still-incomplete) "next" accumulation.
func (c *TableCache) PendingVersion() uint8 { return c.pendingVersion }

// Accept promotes a completed table (as returned by Submit) to Current and
// resets the pending accumulation so a new version can start fresh.
func (c *TableCache) Accept(ordered [][]byte, version uint8) {
	c.Current = ordered
	c.CurrentVersion = version
	c.HasCurrent = true
	c.pending = nil
	c.pendingHasLast = false
}

// DropPending discards an in-progress or completed "next" accumulation
// without promoting it (used when the candidate table fails validation).
func (c *TableCache) DropPending() {
	c.pending = nil
	c.pendingHasLast = false
}

// Equal reports whether ordered is byte-identical, section for section, to
// Current (§4.3's version/content shortcut, §8's idempotence property).
func (c *TableCache) Equal(ordered [][]byte) bool {
	if !c.HasCurrent || len(ordered) != len(c.Current) {
		return false
	}
	for i := range ordered {
		if !bytes.Equal(ordered[i], c.Current[i]) {
			return false
		}
	}
	return true
}
