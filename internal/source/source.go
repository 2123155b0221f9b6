// Package source implements the TS byte sources the relay can ingest from:
// UDP multicast, a sequential file/pipe (standing in for an ASI capture
// card), and SRT. Every implementation satisfies demux.FilterSource so it
// can be handed straight to demux.NewContext (§6, §8).
package source

import "log/slog"

// Source is the narrow contract cmd/dvbrelay needs from any ingest
// transport: a batch read of raw TS bytes, and the per-PID filter
// install/remove hooks demux.FilterSource requires. Sources that can't
// filter in hardware (file, SRT) implement SetFilter/UnsetFilter as no-ops
// and rely on budget mode (§4.1, §8).
type Source interface {
	// Open establishes the underlying connection/handle.
	Open() error
	// Read fills buf (a multiple of 188 bytes) with raw TS bytes and
	// returns how many bytes were read. The count is not guaranteed to be
	// a multiple of 188 (a short file read or a datagram can end mid-packet).
	Read(buf []byte) (n int, err error)
	// SetFilter installs a per-PID filter if the source supports one.
	SetFilter(pid uint16) (handle any, err error)
	// UnsetFilter removes a filter previously installed by SetFilter.
	UnsetFilter(handle any, pid uint16)
	// Reset re-establishes the source connection after the watchdog
	// trips (§4.10).
	Reset() error
	Close() error
}

// noFilter is embedded by sources that always capture the whole
// multiplex and can't install per-PID filters.
type noFilter struct{}

func (noFilter) SetFilter(pid uint16) (any, error) { return nil, nil }
func (noFilter) UnsetFilter(handle any, pid uint16) {}

func defaultLog(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("component", component)
}
