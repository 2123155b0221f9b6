package demux

import (
	"log/slog"
	"time"

	"github.com/zsiec/dvbrelay/internal/psi"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

// Options configures demux-wide behavior that the wire protocol itself
// doesn't carry (§9's DemuxOptions).
type Options struct {
	// BudgetMode disables per-PID SetFilter/UnsetFilter entirely; the
	// source is assumed to already deliver every PID (§4.1, §8).
	BudgetMode bool

	// NetworkID and NetworkName populate the single-TS NIT synthesized
	// for every output (§4.7).
	NetworkID   uint16
	NetworkName string

	// DefaultTSID seeds Output.TSID before the first upstream PAT has
	// been observed.
	DefaultTSID uint16

	// MaxErrors/WatchdogWait bound the transport-error-indicator
	// watchdog (§4.10, §7): more than MaxErrors TEI hits within
	// WatchdogWait triggers a source reset; the counter decays after
	// WatchdogWait of quiescence.
	MaxErrors    int
	WatchdogWait time.Duration

	// MinSectionFragment is MIN_SECTION_FRAGMENT (§4.7, §12 item 3):
	// an EIT TS buffer already holding more than this many bytes is
	// kept open for the next section instead of being flushed
	// immediately.
	MinSectionFragment int

	// MaxEITRetention bounds how long an EIT TS buffer may stay open
	// waiting for its next fragment before being padded and flushed.
	MaxEITRetention time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxErrors == 0 {
		o.MaxErrors = 1000
	}
	if o.WatchdogWait == 0 {
		o.WatchdogWait = 10 * time.Second
	}
	if o.MinSectionFragment == 0 {
		o.MinSectionFragment = 8 // PSI_HEADER_SIZE_SYNTAX1
	}
	if o.MaxEITRetention == 0 {
		o.MaxEITRetention = 500 * time.Millisecond
	}
	if o.NetworkName == "" {
		o.NetworkName = "dvbrelay"
	}
	return o
}

// Sink is the narrow output-transport contract of §6: Put accepts one
// packet bound for output on pid, dated dts (wallclock nanoseconds). Put
// is expected non-blocking — it queues to a sender; a blocking sink is
// the sink's own problem (§5).
type Sink interface {
	Put(output *Output, pid uint16, packet []byte, dts int64)
}

// CACoordinator is the CA/CAM notification surface of §4.4/§4.5/§6,
// called exactly at the transitions those sections define.
type CACoordinator interface {
	AddPMT(pmt []byte)
	UpdatePMT(pmt []byte)
	DeletePMT(pmt []byte)
	Reset()
}

type noopCA struct{}

func (noopCA) AddPMT([]byte)    {}
func (noopCA) UpdatePMT([]byte) {}
func (noopCA) DeletePMT([]byte) {}
func (noopCA) Reset()           {}

// reassemblerTable owns one section Reassembler per PID, satisfying
// PIDManager's ReassemblerSet so UnselectPSI can reset a PID's partial
// buffer on its last psi_refcount release (§4.1, §4.2).
type reassemblerTable struct {
	r [numPIDs]psi.Reassembler
}

func (t *reassemblerTable) Feed(pid uint16, pkt *tspacket.Packet) [][]byte {
	return t.r[pid].Feed(pkt)
}

func (t *reassemblerTable) Reset(pid uint16) {
	t.r[pid].Reset()
}

// Context is the demux-wide state container of §9: the 8192-slot PID
// table, the service registry, the global PSI table caches and the set
// of outputs, threaded through every entry point instead of living as
// process-wide globals (as the original C implementation has them). A
// Context is not safe for concurrent use — per §5's single-threaded
// cooperative model, exactly one goroutine may ever call into it.
type Context struct {
	opts Options
	log  *slog.Logger

	pids         *PIDManager
	reassemblers *reassemblerTable
	services     *ServiceRegistry
	outputs      []*Output

	patCache *psi.TableCache
	nitCache *psi.TableCache
	sdtCache *psi.TableCache

	tsid    uint16
	hasTSID bool

	nitVersion    uint8
	hasNITVersion bool

	sink     Sink
	ca       CACoordinator
	caActive bool // a real CA coordinator was configured; gates CA-descriptor stripping (§4.8)

	errCount    int
	windowStart int64 // wallclock ns of the first TEI hit in the current window; 0 when quiescent
	lastErrorAt int64
	sourceReset func()

	lastBatchWall int64
	cc            [numPIDs]ccState
}

// ccState tracks the last-seen continuity_counter of one PID purely for
// discontinuity diagnostics (§4.10).
type ccState struct {
	last  uint8
	known bool
}

// NewContext constructs a Context bound to source (for PID filtering),
// sink (for outbound packets) and, optionally, a CA coordinator. A nil ca
// is replaced with a no-op implementation so call sites never need a nil
// check (§6).
func NewContext(source FilterSource, sink Sink, ca CACoordinator, opts Options, log *slog.Logger) *Context {
	caActive := ca != nil
	if ca == nil {
		ca = noopCA{}
	}
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()

	c := &Context{
		opts:         opts,
		log:          log,
		reassemblers: &reassemblerTable{},
		services:     NewServiceRegistry(),
		patCache:     psi.NewTableCache(),
		nitCache:     psi.NewTableCache(),
		sdtCache:     psi.NewTableCache(),
		sink:         sink,
		ca:           ca,
		caActive:     caActive,
		tsid:         opts.DefaultTSID,
	}
	c.pids = NewPIDManager(source, opts.BudgetMode)
	// PAT/NIT/SDT/EIT are always demuxed and RST/TDT always captured,
	// regardless of which services any output selects (§4.1, mirroring
	// demux_Open's unconditional SetPID calls).
	c.pids.BootstrapPSI(tspacket.PIDPAT)
	c.pids.BootstrapPSI(tspacket.PIDNIT)
	c.pids.BootstrapPSI(tspacket.PIDSDT)
	c.pids.BootstrapPSI(tspacket.PIDEIT)
	c.pids.Bootstrap(tspacket.PIDRST)
	c.pids.Bootstrap(tspacket.PIDTDT)
	if r, ok := source.(interface{ Reset() error }); ok {
		c.sourceReset = func() {
			if err := r.Reset(); err != nil {
				c.log.Warn("source reset failed", "error", err)
			}
		}
	} else if r, ok := source.(interface{ Reset() }); ok {
		c.sourceReset = r.Reset
	}
	return c
}

// AddOutput registers output with the context so it participates in PSI
// regeneration and packet forwarding.
func (c *Context) AddOutput(o *Output) {
	o.Valid = true
	if !o.FixedTSID {
		o.TSID = c.tsid
	}
	c.outputs = append(c.outputs, o)
}

// RemoveOutput detaches output: every PID it was subscribed to is
// released and it is dropped from the context's output list.
func (c *Context) RemoveOutput(o *Output) {
	for pid := 0; pid < numPIDs; pid++ {
		c.pids.StopPID(o, uint16(pid))
	}
	for i, out := range c.outputs {
		if out == o {
			c.outputs = append(c.outputs[:i], c.outputs[i+1:]...)
			return
		}
	}
}

// PIDIsSelected implements demux_PIDIsSelected (§6): true if any output
// (or PSI subscription) currently causes pid to be captured.
func (c *Context) PIDIsSelected(pid uint16) bool {
	return c.pids.RefCount(pid) > 0
}

// sidIsSelected reports whether any valid output currently selects sid
// (§4.4/§4.5's SIDIsSelected).
func (c *Context) sidIsSelected(sid uint16) bool {
	for _, o := range c.outputs {
		if o.Valid && o.SID == sid {
			return true
		}
	}
	return false
}
