// Command dvbrelay demultiplexes a DVB transport stream, rewrites its PSI
// tables per output, and relays each output to its own destination.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/dvbrelay/internal/ca"
	"github.com/zsiec/dvbrelay/internal/config"
	"github.com/zsiec/dvbrelay/internal/control"
	"github.com/zsiec/dvbrelay/internal/demux"
	"github.com/zsiec/dvbrelay/internal/sink"
	"github.com/zsiec/dvbrelay/internal/source"
	"github.com/zsiec/dvbrelay/internal/tspacket"
)

var version = "dev"

// ctrlRequest funnels one control-plane call onto the single dispatch
// goroutine, which runs fn and closes done when it completes.
type ctrlRequest struct {
	fn   func()
	done chan struct{}
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("dvbrelay starting",
		"version", version,
		"source_kind", cfg.SourceKind,
		"source_addr", cfg.SourceAddr,
		"control_addr", cfg.ControlAddr,
		"outputs", len(cfg.Outputs),
	)

	src, err := newSource(cfg)
	if err != nil {
		slog.Error("failed to build source", "error", err)
		os.Exit(1)
	}
	if err := src.Open(); err != nil {
		slog.Error("failed to open source", "error", err)
		os.Exit(1)
	}

	udpSink := sink.NewUDP(nil)
	caCoord := ca.NewLogging(nil)

	dc := demux.NewContext(src, udpSink, caCoord, demux.Options{
		BudgetMode:  cfg.BudgetMode,
		NetworkID:   cfg.NetworkID,
		NetworkName: cfg.NetworkName,
		DefaultTSID: cfg.DefaultTSID,
	}, nil)

	outputsByID := make(map[string]*demux.Output, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		// An output starts blank; dc.Change is the sole place its
		// SID/PIDList/TSID/DVB/EPG/Watch are applied, whether at startup
		// or on a later control-plane reconfiguration (§4.11).
		o := &demux.Output{}
		dc.AddOutput(o)
		dc.Change(o, oc.SID, oc.PIDs, oc.TSID, oc.FixedTSID, oc.DVB, oc.EPG, oc.Watch)
		if oc.Addr != "" {
			if err := udpSink.Register(o, oc.Addr); err != nil {
				slog.Error("failed to register output", "id", oc.ID, "error", err)
				os.Exit(1)
			}
		}
		outputsByID[oc.ID] = o
	}

	// The demux core is single-threaded (internal/demux's Context doc
	// comment); control HTTP handlers run on their own goroutines, so every
	// call into dc is funneled through this channel and applied between
	// dispatch batches on the main loop, mirroring the original's
	// poll-a-flag-between-batches model.
	ctrlCh := make(chan ctrlRequest, 8)
	submit := func(fn func()) {
		req := ctrlRequest{fn: fn, done: make(chan struct{})}
		ctrlCh <- req
		<-req.done
	}

	ctrlSrv := control.NewServer(cfg.ControlAddr, control.Config{
		Change: func(outputID string, req control.ChangeRequest) error {
			o, ok := outputsByID[outputID]
			if !ok {
				return fmt.Errorf("unknown output %q", outputID)
			}
			submit(func() {
				dc.Change(o, req.SID, req.PIDs, req.TSID, req.FixedTSID, req.DVB, req.EPG, req.Watch)
			})
			return nil
		},
		PIDIsSelected: func(pid uint16) bool {
			var selected bool
			submit(func() { selected = dc.PIDIsSelected(pid) })
			return selected
		},
		ResendCAPMTs: func() {
			submit(func() { dc.ResendCAPMTs() })
		},
	}, nil)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrlSrv.ListenAndServe()
	})

	g.Go(func() error {
		<-gctx.Done()
		return ctrlSrv.Close()
	})

	g.Go(func() error {
		defer src.Close()
		return runDispatchLoop(gctx, src, dc, ctrlCh)
	})

	if err := g.Wait(); err != nil {
		slog.Error("dvbrelay exited with error", "error", err)
		os.Exit(1)
	}
}

// runDispatchLoop is the single goroutine that ever touches dc: it reads
// batches of raw TS bytes from src, applies at most one pending control
// request before each read, and dispatches each batch.
func runDispatchLoop(ctx context.Context, src source.Source, dc *demux.Context, ctrlCh chan ctrlRequest) error {
	const batchPackets = 64
	buf := make([]byte, batchPackets*tspacket.Size)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-ctrlCh:
			req.fn()
			close(req.done)
		default:
		}

		n, err := src.Read(buf)
		if err != nil {
			slog.Warn("source read error", "error", err)
			continue
		}

		packets := splitPackets(buf[:n])
		dc.Dispatch(packets, time.Now().UnixNano())
	}
}

func splitPackets(buf []byte) [][]byte {
	var out [][]byte
	for len(buf) >= tspacket.Size {
		out = append(out, buf[:tspacket.Size])
		buf = buf[tspacket.Size:]
	}
	return out
}

func newSource(cfg *config.Config) (source.Source, error) {
	switch cfg.SourceKind {
	case "udp":
		return source.NewUDP(cfg.SourceAddr, nil), nil
	case "file":
		return source.NewFile(cfg.SourceAddr, nil), nil
	case "srt":
		return source.NewSRT(cfg.SourceAddr, nil), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.SourceKind)
	}
}
