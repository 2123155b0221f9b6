// Package ca defines the conditional-access coordinator contract the demux
// core calls at PMT/descrambling transitions, plus a logging no-op
// implementation that exercises those call sites without requiring real
// CAM hardware (§6, §8).
package ca

import "log/slog"

// Coordinator mirrors demux.CACoordinator; it is declared again here so
// this package has no import-time dependency on internal/demux.
type Coordinator interface {
	AddPMT(pmt []byte)
	UpdatePMT(pmt []byte)
	DeletePMT(pmt []byte)
	Reset()
}

// Logging is a Coordinator that only logs every call, standing in for a
// real CAM/descrambler in deployments that don't need one.
type Logging struct {
	log *slog.Logger
}

// NewLogging returns a Logging coordinator. If log is nil, slog.Default()
// is used.
func NewLogging(log *slog.Logger) *Logging {
	if log == nil {
		log = slog.Default()
	}
	return &Logging{log: log.With("component", "ca")}
}

func (l *Logging) AddPMT(pmt []byte) {
	l.log.Info("AddPMT", "bytes", len(pmt))
}

func (l *Logging) UpdatePMT(pmt []byte) {
	l.log.Info("UpdatePMT", "bytes", len(pmt))
}

func (l *Logging) DeletePMT(pmt []byte) {
	l.log.Info("DeletePMT", "bytes", len(pmt))
}

func (l *Logging) Reset() {
	l.log.Info("Reset")
}
