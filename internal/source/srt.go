package source

import (
	"fmt"
	"log/slog"

	srtgo "github.com/zsiec/srtgo"
)

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms), matching
// the teacher's ingest/srt package.
const srtLatencyNs = 120_000_000

// SRT ingests a raw MPEG-TS feed over SRT: it listens for a single
// publishing connection and reads from whichever connection is currently
// accepted. Like UDP, it always captures the whole multiplex, so
// SetFilter/UnsetFilter are no-ops.
type SRT struct {
	noFilter
	log  *slog.Logger
	addr string

	listener *srtgo.Listener
	conn     *srtgo.Conn
}

// NewSRT returns an SRT source listening on addr. If log is nil,
// slog.Default() is used.
func NewSRT(addr string, log *slog.Logger) *SRT {
	return &SRT{log: defaultLog(log, "source.srt"), addr: addr}
}

func (s *SRT) Open() error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.listener = l
	s.log.Info("listening", "addr", s.addr)

	conn, err := l.Accept()
	if err != nil {
		l.Close()
		return fmt.Errorf("SRT accept on %s: %w", s.addr, err)
	}
	s.conn = conn
	s.log.Info("publisher connected", "remote", conn.RemoteAddr())
	return nil
}

func (s *SRT) Read(buf []byte) (int, error) {
	return s.conn.Read(buf)
}

func (s *SRT) Reset() error {
	s.log.Warn("resetting source")
	if s.conn != nil {
		s.conn.Close()
	}
	conn, err := s.listener.Accept()
	if err != nil {
		return fmt.Errorf("SRT re-accept on %s: %w", s.addr, err)
	}
	s.conn = conn
	return nil
}

func (s *SRT) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
