// Package sink implements the outbound transports a relayed feed can be
// written to: UDP/RTP-less unicast or multicast, and a plain file writer
// useful for tests and recording (§6, §8).
package sink

import (
	"log/slog"

	"github.com/zsiec/dvbrelay/internal/demux"
)

// Sink mirrors demux.Sink; declared again here so this package carries no
// import-time dependency back on internal/demux beyond the Output type
// Put is keyed on.
type Sink interface {
	Put(output *demux.Output, pid uint16, packet []byte, dts int64)
}

func defaultLog(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("component", component)
}
