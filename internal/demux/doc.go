// Package demux implements the PID-reference-counted filter manager, PSI
// table handlers (PAT/PMT/SDT/NIT/EIT), service registry, output PSI
// generation and per-packet dispatcher of the DVB transport-stream relay.
//
// [Context] is the single demux-wide state container: the 8192-slot PID
// table, the service registry, the global PSI table caches and the set of
// outputs. It holds no locks and is not safe for concurrent use — per the
// spec's single-threaded cooperative model, exactly one goroutine (the
// main read/dispatch loop) ever calls into a Context.
package demux
