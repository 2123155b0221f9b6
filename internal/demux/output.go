package demux

// Output describes one outbound feed of the relay: a subset of the input
// service (or raw passthrough when SID is 0) rewritten with its own PAT,
// PMT, SDT, NIT, continuity counters and version numbers (§4.8).
//
// An Output with an empty PIDList auto-selects its elementary streams from
// the service's PMT (§4.9); one with a non-empty PIDList manages its own
// PID set explicitly and is left untouched by SelectPID/UnselectPID (§4.1).
type Output struct {
	Valid bool // OUTPUT_VALID: installed and eligible for PSI regeneration and packet forwarding

	SID       uint16   // 0 = raw/passthrough mode
	PIDList   []uint16 // explicit PID selection; empty means auto-select
	TSID      uint16
	FixedTSID bool // user pinned the TSID; upstream TSID changes don't propagate

	DVB   bool // OUTPUT_DVB: carries SDT/NIT/EIT present-following and is a target for TDT/RST forwarding
	EPG   bool // OUTPUT_EPG: additionally carries EIT schedule tables (only on DVB outputs)
	Watch bool // OUTPUT_WATCH: per-output descrambling health monitoring (§4.10 step 7)

	// PCRTimestamp/PCRWallclock are this output's pcr_anchor (§3): the most
	// recent PCR value seen on the PCR PID of the service it currently
	// carries, paired with the wallclock (ns) the carrying packet was dated
	// with. Updated by the dispatcher strictly before packets are forwarded
	// to the sink (§4.10 step 6).
	PCRTimestamp int64
	PCRWallclock int64

	// Per-output PSI state (§4.8): the last section built for this
	// output, its version counter, and its independent continuity
	// counter. version/cc are maintained purely on the Go side; the
	// raw section bytes are what gets repacketized on every send.
	PATSection []byte
	PATVersion uint8
	PATCC      uint8

	PMTSection []byte
	PMTVersion uint8
	PMTCC      uint8

	SDTSection []byte
	SDTVersion uint8
	SDTCC      uint8

	NITSection []byte
	NITVersion uint8
	NITCC      uint8

	// EIT sections are coalesced rather than cached (§4.7, §12 item 3):
	// EITTSBuffer accumulates raw section bytes not yet packetized;
	// EITBufferedAt is the wallclock (ns) the first of those sections
	// arrived, for MAX_EIT_RETENTION aging. EITCC is its own
	// continuity counter.
	EITTSBuffer   []byte
	EITBufferedAt int64
	EITCC         uint8

	ErrorCount    int
	LastErrorWall int64 // wallclock (§4.10 watchdog), nanoseconds
}

// WantsAllPIDs reports whether this output auto-selects elementary streams
// from the PMT rather than tracking an explicit PID list.
func (o *Output) WantsAllPIDs() bool {
	return len(o.PIDList) == 0
}

// HasExplicitPID reports whether pid is present in the output's explicit
// PID list.
func (o *Output) HasExplicitPID(pid uint16) bool {
	for _, p := range o.PIDList {
		if p == pid {
			return true
		}
	}
	return false
}

