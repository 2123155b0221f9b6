package demux

import (
	"testing"

	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// TestChangeRegeneratesNothingWhenNothingChanged is the idempotence
// property of spec.md §8: calling Change twice with identical arguments
// must not bump any of the output's four PSI version counters.
func TestChangeRegeneratesNothingWhenNothingChanged(t *testing.T) {
	c, _ := newTestContext(t)
	o := &Output{}
	c.AddOutput(o)

	c.Change(o, 1, []uint16{0x0102}, 0, false, false, false, false)
	pat, pmt, sdt, nit := o.PATVersion, o.PMTVersion, o.SDTVersion, o.NITVersion

	c.Change(o, 1, []uint16{0x0102}, 0, false, false, false, false)
	if o.PATVersion != pat || o.PMTVersion != pmt || o.SDTVersion != sdt || o.NITVersion != nit {
		t.Errorf("repeating an identical Change bumped a version counter: PAT %d->%d PMT %d->%d SDT %d->%d NIT %d->%d",
			pat, o.PATVersion, pmt, o.PMTVersion, sdt, o.SDTVersion, nit, o.NITVersion)
	}
}

// TestChangeSIDChangeRegeneratesAllFourTables exercises the sid_change
// branch of the out_change dispatch (§4.11).
func TestChangeSIDChangeRegeneratesAllFourTables(t *testing.T) {
	c, _ := newTestContext(t)
	o := &Output{}
	c.AddOutput(o)

	c.Change(o, 1, nil, 0, false, false, false, false)
	pat, pmt, sdt, nit := o.PATVersion, o.PMTVersion, o.SDTVersion, o.NITVersion

	c.Change(o, 2, nil, 0, false, false, false, false)
	if o.PATVersion == pat || o.PMTVersion == pmt || o.SDTVersion == sdt || o.NITVersion == nit {
		t.Errorf("a sid change must regenerate all four tables: PAT %d->%d PMT %d->%d SDT %d->%d NIT %d->%d",
			pat, o.PATVersion, pmt, o.PMTVersion, sdt, o.SDTVersion, nit, o.NITVersion)
	}
}

// TestChangePIDChangeRegeneratesOnlyPMT exercises the pid_change-alone
// branch: an explicit PID list change with the same sid/tsid must
// regenerate the PMT but leave PAT/SDT/NIT untouched.
func TestChangePIDChangeRegeneratesOnlyPMT(t *testing.T) {
	c, _ := newTestContext(t)
	o := &Output{}
	c.AddOutput(o)

	c.Change(o, 1, []uint16{0x0102}, 0, false, false, false, false)
	pat, pmt, sdt, nit := o.PATVersion, o.PMTVersion, o.SDTVersion, o.NITVersion

	c.Change(o, 1, []uint16{0x0103}, 0, false, false, false, false)
	if o.PMTVersion == pmt {
		t.Errorf("PMT should have been regenerated after a pid_change, got unchanged version %d", pmt)
	}
	if o.PATVersion != pat || o.SDTVersion != sdt || o.NITVersion != nit {
		t.Errorf("a pid_change alone must not touch PAT/SDT/NIT: PAT %d->%d SDT %d->%d NIT %d->%d",
			pat, o.PATVersion, sdt, o.SDTVersion, nit, o.NITVersion)
	}
}

// TestChangeTSIDChangeRegeneratesSDTNITPATButNotPMT exercises the
// tsid_change-alone branch.
func TestChangeTSIDChangeRegeneratesSDTNITPATButNotPMT(t *testing.T) {
	c, _ := newTestContext(t)
	o := &Output{}
	c.AddOutput(o)

	c.Change(o, 1, []uint16{0x0102}, 10, true, false, false, false)
	pat, pmt, sdt, nit := o.PATVersion, o.PMTVersion, o.SDTVersion, o.NITVersion

	c.Change(o, 1, []uint16{0x0102}, 20, true, false, false, false)
	if o.PMTVersion != pmt {
		t.Errorf("a tsid_change alone must not touch PMT, got %d->%d", pmt, o.PMTVersion)
	}
	if o.PATVersion == pat || o.SDTVersion == sdt || o.NITVersion == nit {
		t.Errorf("a tsid_change must regenerate SDT/NIT/PAT: PAT %d->%d SDT %d->%d NIT %d->%d",
			pat, o.PATVersion, sdt, o.SDTVersion, nit, o.NITVersion)
	}
}

// TestUpdatePCRAnchorStampsOutputsOfTheOwningService verifies §4.10 step 6:
// a PCR arriving on a service's PCR PID stamps the anchor of every valid
// output currently selecting that service, and leaves others untouched.
func TestUpdatePCRAnchorStampsOutputsOfTheOwningService(t *testing.T) {
	c, _ := newTestContext(t)

	feedSection(c, tspacket.PIDPAT, psi.BuildPAT(1, 0, []psi.PATProgram{
		{ProgramNumber: 1, PID: 0x0100},
	}))
	feedSection(c, 0x0100, psi.BuildPMT(1, 0, 0x0101, nil, []psi.PMTStream{
		{PID: 0x0101, StreamType: 0x1b},
	}))

	owner := &Output{SID: 1}
	other := &Output{SID: 2}
	c.AddOutput(owner)
	c.AddOutput(other)

	raw := make([]byte, tspacket.Size)
	raw[0] = tspacket.SyncByte
	raw[1] = byte(0x0101 >> 8)
	raw[2] = byte(0x0101 & 0xFF)
	raw[3] = 0x20 // adaptation field only, no payload
	raw[4] = tspacket.Size - 5
	raw[5] = 0x10 // PCR_flag
	// 6-byte PCR field: base (33 bits) = 0, reserved (6 bits) = all 1,
	// extension (9 bits) = 0.
	raw[6], raw[7], raw[8], raw[9] = 0, 0, 0, 0
	raw[10] = 0x7E
	raw[11] = 0x00

	c.dispatchOne(raw, 5000)

	if owner.PCRWallclock != 5000 {
		t.Errorf("owner.PCRWallclock = %d, want 5000 (PCR PID belongs to its service)", owner.PCRWallclock)
	}
	if other.PCRWallclock != 0 {
		t.Errorf("other.PCRWallclock = %d, want 0 (different service, must not be stamped)", other.PCRWallclock)
	}
}

// TestCheckWatchFlagsScrambledUnitStartAndResetsCA verifies §4.10 step 7 /
// §7 item 4: a scrambled unit-start packet on a watched output counts as a
// descrambling error, and exceeding MaxErrors resets every output's error
// count and the CA coordinator.
func TestCheckWatchFlagsScrambledUnitStartAndResetsCA(t *testing.T) {
	ca := &countingCA{}
	sink := &fakeSink{}
	c := NewContext(newFakeFilterSource(), sink, ca, Options{MaxErrors: 1, WatchdogWait: 1000}, nil)

	watched := &Output{Valid: true, SID: 1, Watch: true}
	quiet := &Output{Valid: true, SID: 1}
	c.AddOutput(watched)
	c.AddOutput(quiet)
	c.pids.StartPID(watched, 0x0101)
	c.pids.StartPID(quiet, 0x0101)
	quiet.ErrorCount = 3

	raw := make([]byte, tspacket.Size)
	raw[0] = tspacket.SyncByte
	raw[1] = 0x40 | byte(0x0101>>8) // payload_unit_start_indicator
	raw[2] = byte(0x0101 & 0xFF)
	raw[3] = 0x30 | 0x80 // adaptation+payload present, scrambling_control = 2
	raw[4] = 0
	raw[5] = 0x10

	c.dispatchOne(raw, 1000)
	if watched.ErrorCount != 1 {
		t.Fatalf("watched.ErrorCount = %d, want 1 after one scrambled unit-start", watched.ErrorCount)
	}
	if ca.resets != 0 {
		t.Fatalf("CA reset fired too early: resets=%d", ca.resets)
	}

	c.dispatchOne(raw, 2000)
	if ca.resets != 1 {
		t.Errorf("CA resets = %d, want 1 after exceeding MaxErrors", ca.resets)
	}
	if watched.ErrorCount != 0 || quiet.ErrorCount != 0 {
		t.Errorf("a CA reset must zero every output's error count: watched=%d quiet=%d", watched.ErrorCount, quiet.ErrorCount)
	}
}

// TestCheckWatchIgnoresPacketsWithoutCACoordinator verifies the CA gate:
// with no CA coordinator configured, a scrambled unit-start packet on a
// watched output leaves ErrorCount untouched.
func TestCheckWatchIgnoresPacketsWithoutCACoordinator(t *testing.T) {
	sink := &fakeSink{}
	c := NewContext(newFakeFilterSource(), sink, nil, Options{}, nil) // no CA coordinator: caActive false

	o := &Output{Valid: true, SID: 1, Watch: true}
	c.pids.StartPID(o, 0x0101)

	raw := make([]byte, tspacket.Size)
	raw[0] = tspacket.SyncByte
	raw[1] = 0x40 | byte(0x0101>>8)
	raw[2] = byte(0x0101 & 0xFF)
	raw[3] = 0x10 | 0x80 // scrambled, unit-start

	c.dispatchOne(raw, 1000)
	if o.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0 when no CA coordinator is configured", o.ErrorCount)
	}
}

type countingCA struct {
	resets int
}

func (countingCA) AddPMT([]byte)    {}
func (countingCA) UpdatePMT([]byte) {}
func (countingCA) DeletePMT([]byte) {}
func (c *countingCA) Reset()        { c.resets++ }
