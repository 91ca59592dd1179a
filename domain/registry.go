package domain

import (
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"

	"github.com/erigontech/domaincore/domain/dmetrics"
	"github.com/erigontech/domaincore/domain/stw"
)

// Registry is the fixed-size table of MaxDomains slots (spec section 2,
// "Domain Registry"). It tracks which slots are running and the dense
// prefix order in which they participate in STW, and owns
// next_domain_unique_id.
type Registry struct {
	slots []*Slot // fixed size = maxDomains, index = slot id

	mu               sync.Mutex // all_domains_lock
	participantOrder []int      // dense prefix of slot ids, invariant 1
	nextUniqueID     int64      // 0 is reserved for the bootstrap domain
}

func newRegistry(maxDomains int) *Registry {
	r := &Registry{
		slots:        make([]*Slot, maxDomains),
		nextUniqueID: 1,
	}
	for i := range r.slots {
		r.slots[i] = newSlot(i)
	}
	return r
}

// MaxDomains returns the fixed slot-table size.
func (r *Registry) MaxDomains() int { return len(r.slots) }

// Slot returns slot i, or nil if out of range.
func (r *Registry) Slot(i int) *Slot {
	if i < 0 || i >= len(r.slots) {
		return nil
	}
	return r.slots[i]
}

// NumRunning returns the number of currently-participating slots.
func (r *Registry) NumRunning() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participantOrder)
}

// Snapshot implements stw.Source: a point-in-time copy of the dense
// participant prefix, safe to iterate without holding any lock. The
// caller must hold r.mu: the coordinator calls it under the claim lock,
// which is this same mutex.
func (r *Registry) Snapshot() []stw.Participant {
	out := make([]stw.Participant, len(r.participantOrder))
	for i, id := range r.participantOrder {
		out[i] = r.slots[id]
	}
	return out
}

// acquireFreeSlot finds a non-running slot and reserves it by index; the
// caller must hold r.mu. Returns nil if every slot is occupied.
func (r *Registry) acquireFreeSlot() *Slot {
	occupied := make(map[int]bool, len(r.participantOrder))
	for _, id := range r.participantOrder {
		occupied[id] = true
	}
	for _, s := range r.slots {
		if !occupied[s.id] && !s.Running() {
			return s
		}
	}
	return nil
}

// publishParticipant appends slot to the dense prefix. The caller must
// have already published the slot's interrupt word (invariant 1: a slot
// is a participant iff interrupt_word is non-null iff running is true)
// and must hold r.mu.
func (r *Registry) publishParticipant(s *Slot) {
	r.participantOrder = append(r.participantOrder, s.id)
	dmetrics.DomainsRunning.Set(float64(len(r.participantOrder)))
}

// removeParticipant removes slot from the dense prefix by swapping with
// the last entry, matching spec section 4.5's terminate step ("remove
// self from participant prefix (swap with last)"). The caller must hold
// r.mu.
func (r *Registry) removeParticipant(s *Slot) {
	for i, id := range r.participantOrder {
		if id == s.id {
			last := len(r.participantOrder) - 1
			r.participantOrder[i] = r.participantOrder[last]
			r.participantOrder = r.participantOrder[:last]
			dmetrics.DomainsRunning.Set(float64(len(r.participantOrder)))
			return
		}
	}
}

// allocUniqueID assigns the next unique_id, skipping 0 (reserved for the
// bootstrap domain) and wrapping at 32 bits as spec.md's "Open questions"
// note requires. The caller must hold r.mu.
func (r *Registry) allocUniqueID() int64 {
	id := r.nextUniqueID
	r.nextUniqueID++
	if r.nextUniqueID > 0xFFFFFFFF {
		r.nextUniqueID = 1 // wrap, but never reassign the reserved 0
	}
	return id
}

// InterruptAllFast implements interrupt_all_signal_safe (spec section
// 4.6): no lock, no allocation, a single pass over the fixed slot array
// with acquire loads on each interrupt word, early-exit on the first nil.
// This is the one method in the package that must never acquire a mutex.
func (r *Registry) InterruptAllFast() {
	for _, s := range r.slots {
		w := s.interruptor.Word()
		if w == nil {
			return
		}
		atomic.StoreUintptr(w, uintptr(^uintptr(0)))
	}
}

// RegistrySnapshot is the read-only introspection view described in
// SPEC_FULL.md section 6: which slots are live, plus per-slot identity
// and allocation stats, exposed for cmd/domainctl and for test
// assertions. It takes all_domains_lock, so it must never be called from
// a signal-safe or hot path.
type RegistrySnapshot struct {
	Running    *roaring.Bitmap
	UniqueIDs  map[int]int64
	AllocStats map[int]AllocStatsView
}

// RegistrySnapshot returns the introspection view; named after the type
// it returns to keep it distinct from the stw.Source Snapshot
// method above, which serves a different, hot-path contract.
func (r *Registry) RegistrySnapshot() RegistrySnapshot {
	r.mu.Lock()
	ids := append([]int(nil), r.participantOrder...)
	r.mu.Unlock()

	bm := roaring.New()
	uids := make(map[int]int64, len(ids))
	stats := make(map[int]AllocStatsView, len(ids))
	for _, id := range ids {
		bm.Add(uint32(id))
		s := r.slots[id]
		uids[id] = s.UniqueID()
		if st := s.State(); st != nil {
			stats[id] = st.Stats.Snapshot()
		}
	}
	return RegistrySnapshot{Running: bm, UniqueIDs: uids, AllocStats: stats}
}
