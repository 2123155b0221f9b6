package demux

const numPIDs = 8192 // 13-bit PID space

// FilterSource is the narrow slice of the TS source contract the PID
// manager needs: installing and removing a hardware/socket filter for a
// single PID. Sources that can't filter per-PID (budget mode) are simply
// never asked.
type FilterSource interface {
	SetFilter(pid uint16) (handle any, err error)
	UnsetFilter(handle any, pid uint16)
}

// pidState is the per-PID bookkeeping of §3/§4.1: two independent
// reference counters plus the set of outputs currently receiving this PID
// verbatim (as opposed to via generated PSI).
type pidState struct {
	refCount    int
	psiRefCount int
	pes         bool
	filterOn    bool
	handle      any
	outputs     []*Output // may contain nil gaps; lowest-index reuse, per §4.1
}

// PIDManager is the demux-wide PID-filter manager: it owns the
// filter_refcount/psi_refcount pair for every PID and talks to the source
// driver to install or remove filters as those counters transition to and
// from zero.
type PIDManager struct {
	pids       [numPIDs]pidState
	source     FilterSource
	budgetMode bool
}

// NewPIDManager returns a manager bound to source. If budgetMode is true,
// the source is assumed to already capture the whole stream and no
// per-PID SetFilter/UnsetFilter calls are ever issued (§4.1, §8).
func NewPIDManager(source FilterSource, budgetMode bool) *PIDManager {
	return &PIDManager{source: source, budgetMode: budgetMode}
}

// RefCount returns the current filter_refcount of pid (test/introspection
// hook for §10's non-negativity property).
func (m *PIDManager) RefCount(pid uint16) int { return m.pids[pid].refCount }

// PSIRefCount returns the current psi_refcount of pid.
func (m *PIDManager) PSIRefCount(pid uint16) int { return m.pids[pid].psiRefCount }

// IsPSI reports whether pid currently carries PSI sections (psi_refcount > 0).
func (m *PIDManager) IsPSI(pid uint16) bool { return m.pids[pid].psiRefCount > 0 }

// setPID increments filter_refcount and, on the 0→1 transition outside
// budget mode, asks the source to install a filter.
func (m *PIDManager) setPID(pid uint16) {
	st := &m.pids[pid]
	st.refCount++
	if !m.budgetMode && st.refCount == 1 && !st.filterOn {
		if h, err := m.source.SetFilter(pid); err == nil {
			st.handle = h
			st.filterOn = true
		}
	}
}

// unsetPID decrements filter_refcount and, on the 1→0 transition outside
// budget mode, releases the source filter.
func (m *PIDManager) unsetPID(pid uint16) {
	st := &m.pids[pid]
	st.refCount--
	if !m.budgetMode && st.refCount == 0 && st.filterOn {
		m.source.UnsetFilter(st.handle, pid)
		st.handle = nil
		st.filterOn = false
	}
}

// StartPID attaches output to pid's forwarding set, reusing the
// lowest-index free slot, and bumps filter_refcount. A no-op if output is
// already attached.
func (m *PIDManager) StartPID(output *Output, pid uint16) {
	st := &m.pids[pid]
	for _, o := range st.outputs {
		if o == output {
			return
		}
	}

	slot := len(st.outputs)
	for i, o := range st.outputs {
		if o == nil {
			slot = i
			break
		}
	}
	if slot == len(st.outputs) {
		st.outputs = append(st.outputs, output)
	} else {
		st.outputs[slot] = output
	}
	m.setPID(pid)
}

// StopPID detaches output from pid's forwarding set (nulling its slot, per
// §4.1's tie-break rule) and drops filter_refcount. A no-op if output was
// not attached.
func (m *PIDManager) StopPID(output *Output, pid uint16) {
	st := &m.pids[pid]
	for i, o := range st.outputs {
		if o == output {
			st.outputs[i] = nil
			m.unsetPID(pid)
			return
		}
	}
}

// Outputs returns the (possibly sparse) forwarding set for pid; callers
// must skip nil entries.
func (m *PIDManager) Outputs(pid uint16) []*Output { return m.pids[pid].outputs }

// SelectPID applies StartPID for pid to every valid output of sid whose
// PID list is empty (auto-selection mode). Outputs with an explicit PID
// list manage their own set via demux_Change and are left untouched.
func (m *PIDManager) SelectPID(outputs []*Output, sid uint16, pid uint16) {
	for _, o := range outputs {
		if o.Valid && o.SID == sid && o.WantsAllPIDs() {
			m.StartPID(o, pid)
		}
	}
}

// UnselectPID is the inverse of SelectPID.
func (m *PIDManager) UnselectPID(outputs []*Output, sid uint16, pid uint16) {
	for _, o := range outputs {
		if o.Valid && o.SID == sid && o.WantsAllPIDs() {
			m.StopPID(o, pid)
		}
	}
}

// SelectPSI marks pid as carrying PSI (bumping psi_refcount and clearing
// the PES flag) and calls setPID once for every currently-valid output of
// sid, regardless of that output's PID list — PSI PIDs are never subject
// to explicit-list opt-out, per §4.1.
func (m *PIDManager) SelectPSI(outputs []*Output, sid uint16, pid uint16, reassemblers ReassemblerSet) {
	st := &m.pids[pid]
	st.psiRefCount++
	st.pes = false

	for _, o := range outputs {
		if o.Valid && o.SID == sid {
			m.setPID(pid)
		}
	}
}

// UnselectPSI is the inverse of SelectPSI. When psi_refcount reaches zero
// the PID's section reassembler is reset (§4.1, §4.2) so a future reuse of
// the PID starts from a clean pointer_field state.
func (m *PIDManager) UnselectPSI(outputs []*Output, sid uint16, pid uint16, reassemblers ReassemblerSet) {
	st := &m.pids[pid]
	st.psiRefCount--
	if st.psiRefCount == 0 && reassemblers != nil {
		reassemblers.Reset(pid)
	}

	for _, o := range outputs {
		if o.Valid && o.SID == sid {
			m.unsetPID(pid)
		}
	}
}

// Retain bumps pid's filter_refcount with no output-array tracking and no
// effect on psi_refcount. Used for an output's raw interest in a PID whose
// section reassembly is independently owned by the PSI subscription that
// first demuxed it — the PMT PID during a per-output SID change (§4.11,
// mirroring demux_Change's direct SetPID/UnsetPID calls, distinct from the
// per-service SelectPSI/UnselectPSI that own psi_refcount).
func (m *PIDManager) Retain(pid uint16) { m.setPID(pid) }

// Release is the inverse of Retain.
func (m *PIDManager) Release(pid uint16) { m.unsetPID(pid) }

// BootstrapPSI permanently marks pid as PSI-bearing and installs its
// filter, independent of any output subscription. Used once at startup
// for PAT/NIT/SDT/EIT (§4.1, mirroring demux_Open's unconditional
// SetPID+psi_refcount++ for those four PIDs — they are demuxed
// regardless of which services any output has selected).
func (m *PIDManager) BootstrapPSI(pid uint16) {
	st := &m.pids[pid]
	st.psiRefCount++
	m.setPID(pid)
}

// Bootstrap installs pid's filter unconditionally without marking it
// PSI-bearing, for PIDs that are forwarded verbatim rather than
// reassembled (RST/TDT).
func (m *PIDManager) Bootstrap(pid uint16) {
	m.setPID(pid)
}

// SetPES records whether pid's payload is advisory PES-framed elementary
// stream data, as derived from a PMT stream_type (§3, §4.5, §4.9).
func (m *PIDManager) SetPES(pid uint16, v bool) { m.pids[pid].pes = v }

// IsPES reports the carries_pes advisory flag last set for pid.
func (m *PIDManager) IsPES(pid uint16) bool { return m.pids[pid].pes }

// ReassemblerSet is the narrow view of the per-PID section reassembler
// pool that the PID manager needs in order to reset one on psi_refcount
// reaching zero.
type ReassemblerSet interface {
	Reset(pid uint16)
}
