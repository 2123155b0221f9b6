package demux

// Service is one entry of the service registry (§3's "service record"):
// the mapping from a program's SID to the PID carrying its PMT and the
// last PMT section accepted for it.
type Service struct {
	SID        uint16 // 0 marks a free slot
	PMTPID     uint16
	CurrentPMT []byte
}

// ServiceRegistry holds one Service per program currently known from the
// PAT, reusing freed slots (SID==0) in place so that indices stay stable
// for the lifetime of the demux run. Exactly one record may hold a given
// non-zero SID at a time (§3 invariant).
type ServiceRegistry struct {
	services []*Service
}

// NewServiceRegistry returns an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{}
}

// Find returns the service record for sid, or nil if none exists.
func (r *ServiceRegistry) Find(sid uint16) *Service {
	if sid == 0 {
		return nil
	}
	for _, s := range r.services {
		if s.SID == sid {
			return s
		}
	}
	return nil
}

// All returns every currently-occupied service record.
func (r *ServiceRegistry) All() []*Service {
	out := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		if s.SID != 0 {
			out = append(out, s)
		}
	}
	return out
}

// Add registers sid at pmtPID, reusing the lowest-index free slot.
// Returns the new (or pre-existing, left untouched) record.
func (r *ServiceRegistry) Add(sid, pmtPID uint16) *Service {
	if existing := r.Find(sid); existing != nil {
		return existing
	}
	for _, s := range r.services {
		if s.SID == 0 {
			s.SID, s.PMTPID, s.CurrentPMT = sid, pmtPID, nil
			return s
		}
	}
	s := &Service{SID: sid, PMTPID: pmtPID}
	r.services = append(r.services, s)
	return s
}

// Delete frees sid's slot for reuse, clearing its cached PMT.
func (r *ServiceRegistry) Delete(sid uint16) {
	for _, s := range r.services {
		if s.SID == sid {
			s.SID, s.PMTPID, s.CurrentPMT = 0, 0, nil
			return
		}
	}
}
