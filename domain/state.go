package domain

import "sync"

// State is the mutator's private data for one slot, called "domain-state"
// in spec section 3. It is allocated on the slot's first ever use and
// then reused across successive domains that land on the same slot; only
// YoungLimit and DLS are reset between domains, never Stats.
type State struct {
	// YoungLimit is the cell interrupt.Interruptor's word points at.
	// Writing interrupt.Max through it forces the mutator's next
	// allocation check to trap into the runtime.
	YoungLimit uintptr

	Stats AllocStats

	// dls is the domain-local-storage cell (spec section 6 dls_get/set).
	// It's exclusively owned by the domain's own mutator goroutine per
	// spec section 3's ownership rule, so a plain mutex-guarded field is
	// sufficient; sync/atomic.Value is a poor fit here because it panics
	// if callers ever store two different concrete types across the same
	// cell's lifetime, which a general-purpose DLS slot cannot promise.
	dlsMu  sync.Mutex
	dlsVal any
	dlsSet bool
}

// reset clears the per-domain fields a fresh domain must not inherit,
// while leaving Stats untouched (GC allocation stats persist by design).
func (s *State) reset() {
	s.YoungLimit = 0
	s.dlsMu.Lock()
	s.dlsVal = nil
	s.dlsSet = false
	s.dlsMu.Unlock()
}

func (s *State) dlsGet() (any, bool) {
	s.dlsMu.Lock()
	defer s.dlsMu.Unlock()
	return s.dlsVal, s.dlsSet
}

func (s *State) dlsSetValue(v any) {
	s.dlsMu.Lock()
	s.dlsVal = v
	s.dlsSet = true
	s.dlsMu.Unlock()
}

func (s *State) dlsCompareAndSet(old, new any) bool {
	s.dlsMu.Lock()
	defer s.dlsMu.Unlock()
	var cur any
	if s.dlsSet {
		cur = s.dlsVal
	}
	if cur != old {
		return false
	}
	s.dlsVal = new
	s.dlsSet = true
	return true
}
