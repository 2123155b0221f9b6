package sink

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/zsiec/dvbrelay/internal/demux"
)

// UDP fans out each output's packets to its own UDP destination (unicast
// or multicast), one write per arriving TS packet. Outputs are registered
// by address before the dispatcher starts forwarding to them.
type UDP struct {
	log *slog.Logger

	mu    sync.Mutex
	conns map[*demux.Output]*net.UDPConn
}

// NewUDP returns an empty UDP sink. If log is nil, slog.Default() is used.
func NewUDP(log *slog.Logger) *UDP {
	return &UDP{log: defaultLog(log, "sink.udp"), conns: make(map[*demux.Output]*net.UDPConn)}
}

// Register dials addr (host:port, a multicast or unicast destination) for
// output and remembers the connection for subsequent Put calls.
func (u *UDP) Register(output *demux.Output, addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	u.mu.Lock()
	if old, ok := u.conns[output]; ok {
		old.Close()
	}
	u.conns[output] = conn
	u.mu.Unlock()

	u.log.Info("output registered", "addr", addr)
	return nil
}

// SetTTL sets the multicast TTL / unicast hop limit on output's socket
// (dvblast.h's output_SetTTL, §11).
func (u *UDP) SetTTL(output *demux.Output, ttl int) error {
	u.mu.Lock()
	conn := u.conns[output]
	u.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("sink/udp: output not registered")
	}
	return ipv4.NewConn(conn).SetTTL(ttl)
}

// Unregister closes and forgets output's connection.
func (u *UDP) Unregister(output *demux.Output) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if conn, ok := u.conns[output]; ok {
		conn.Close()
		delete(u.conns, output)
	}
}

// Put implements Sink. Unregistered outputs are silently dropped — an
// output added to the demux core before its destination address is known
// (e.g. mid-reconfiguration) simply produces no traffic until registered.
func (u *UDP) Put(output *demux.Output, pid uint16, packet []byte, dts int64) {
	u.mu.Lock()
	conn := u.conns[output]
	u.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(packet); err != nil {
		u.log.Debug("write error", "pid", pid, "error", err)
	}
}
