package domain

import (
	"runtime"

	"github.com/erigontech/domaincore/domain/barrier"
	"github.com/erigontech/domaincore/domain/stw"
)

// Handle is a domain's view of itself: the Go analogue of the implicit
// "self" the C runtime threads through every managed-side primitive in
// spec section 6 (self_unique_id, self_index, dls_get, ...). A Go program
// has no portable per-thread-local storage to hang an implicit self off
// of, so domaincore makes it explicit: Spawn hands the new domain's
// goroutine a *Handle instead of relying on thread-locals.
type Handle struct {
	rt   *Runtime
	slot *Slot
}

// SelfUniqueID returns this domain's unique_id.
func (h *Handle) SelfUniqueID() int64 { return h.slot.UniqueID() }

// SelfIndex returns this domain's slot index, in [0, MaxDomains).
func (h *Handle) SelfIndex() int { return h.slot.id }

// AllocStats returns a snapshot of this domain's persistent GC counters.
func (h *Handle) AllocStats() AllocStatsView { return h.slot.State().Stats.Snapshot() }

// DLSGet returns the domain-local-storage value, or nil if never set.
func (h *Handle) DLSGet() any {
	v, _ := h.slot.State().dlsGet()
	return v
}

// DLSSet stores v as this domain's DLS value.
func (h *Handle) DLSSet(v any) {
	h.slot.State().dlsSetValue(v)
}

// DLSCompareAndSet atomically replaces the DLS value if it currently
// equals old; this relies on old/new being comparable via ==, the same
// constraint sync/atomic.Value.CompareAndSwap carries.
func (h *Handle) DLSCompareAndSet(old, new any) bool {
	return h.slot.State().dlsCompareAndSet(old, new)
}

// CPURelax is the runtime yield hint of spec section 6: it drains any
// pending STW interrupt for this domain, then yields the goroutine.
func (h *Handle) CPURelax() {
	h.HandlePendingInterrupt()
	runtime.Gosched()
}

// HandlePendingInterrupt implements interrupt.Interruptor's
// handle_incoming contract for this domain: if a poke is outstanding,
// clear it and run the STW handler. Returns whether work was done.
func (h *Handle) HandlePendingInterrupt() bool {
	if !h.slot.interruptor.HasPending() {
		return false
	}
	h.slot.interruptor.SetHandled()
	if h.rt.Coord.HandleIncoming(h.slot, nil) {
		return true
	}
	// No STW request was published for this poke: it's a plain external
	// interrupt rather than a section join, spec section 6's
	// domain_external_interrupt_hook.
	h.rt.Hooks.fire(h.rt.Hooks.ExternalInterruptHook, h.slot.UniqueID())
	return false
}

// TryRunOnAllDomains requests an STW section (spec section 4.3). See
// stw.Coordinator.TryRunOnAllDomains for the full contract; on a false
// return, HandlePendingInterrupt has already been attempted as the fast-
// reject path's "handle any pending interrupt locally" step.
func (h *Handle) TryRunOnAllDomains(sync bool, cb stw.Callback, data any, leaderSetup func(all []stw.Participant), enterSpin func()) bool {
	ran := h.rt.Coord.TryRunOnAllDomains(h.slot, sync, cb, data, leaderSetup, enterSpin)
	if !ran {
		h.HandlePendingInterrupt()
	}
	return ran
}

// InnerBarrier exposes the coordinator's reusable barrier for a callback
// that wants to split its own work into phases.
func (h *Handle) InnerBarrier() *barrier.Barrier {
	return h.rt.Coord.InnerBarrier()
}
