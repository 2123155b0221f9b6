// Package control implements the HTTP reconfiguration surface over the
// demux core: demux_Change, demux_PIDIsSelected and demux_ResendCAPMTs
// (spec.md §6, SPEC_FULL.md §8), grounded on the teacher's
// internal/distribution/server.go request/response idiom.
package control

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// Config wires the HTTP surface to the single demux goroutine. Every func
// field is expected to itself be safe to call from an HTTP handler
// goroutine — in practice each submits a closure to the main dispatch loop
// and blocks for its result, since internal/demux.Context is not safe for
// concurrent use (SPEC_FULL.md §7).
type Config struct {
	// Change applies a demux_Change reconfiguration to the named output.
	Change func(outputID string, req ChangeRequest) error
	// PIDIsSelected reports demux_PIDIsSelected for pid.
	PIDIsSelected func(pid uint16) bool
	// ResendCAPMTs triggers demux_ResendCAPMTs.
	ResendCAPMTs func()
}

// ChangeRequest is the JSON body of POST /outputs/{id}/change.
type ChangeRequest struct {
	SID       uint16   `json:"sid"`
	PIDs      []uint16 `json:"pids,omitempty"`
	TSID      uint16   `json:"tsid,omitempty"`
	FixedTSID bool     `json:"fixedTsid,omitempty"`
	DVB       bool     `json:"dvb,omitempty"`
	EPG       bool     `json:"epg,omitempty"`
	Watch     bool     `json:"watch,omitempty"`
}

// Server is the HTTP control-plane listener.
type Server struct {
	log    *slog.Logger
	addr   string
	config Config
	srv    *http.Server
}

// NewServer returns a control Server bound to addr. If log is nil,
// slog.Default() is used.
func NewServer(addr string, config Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{log: log.With("component", "control"), addr: addr, config: config}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /outputs/{id}/change", s.handleChange)
	mux.HandleFunc("GET /pids/{pid}/selected", s.handlePIDSelected)
	mux.HandleFunc("POST /ca/resend", s.handleResendCA)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control: %w", err)
	}
	return nil
}

// Close shuts the server down.
func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req ChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.config.Change == nil {
		writeError(w, http.StatusNotImplemented, "change not configured")
		return
	}
	if err := s.config.Change(id, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "output": id})
}

func (s *Server) handlePIDSelected(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseUint(r.PathValue("pid"), 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pid")
		return
	}
	if s.config.PIDIsSelected == nil {
		writeError(w, http.StatusNotImplemented, "pid query not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"selected": s.config.PIDIsSelected(uint16(pid))})
}

func (s *Server) handleResendCA(w http.ResponseWriter, r *http.Request) {
	if s.config.ResendCAPMTs == nil {
		writeError(w, http.StatusNotImplemented, "CA resend not configured")
		return
	}
	s.config.ResendCAPMTs()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resent"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding control response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
