package domain

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/erigontech/domaincore/domain/backup"
	"github.com/erigontech/domaincore/domain/interrupt"
	"github.com/erigontech/domaincore/domain/minorheap"
)

// Slot is one entry in the fixed-size domain registry (spec section 3):
// lifetime = process, reused across successive domains. The zero value
// is not directly usable outside this package; newSlot constructs one
// per index at Runtime startup.
type Slot struct {
	id int

	state atomic.Pointer[State] // nullable; allocated on first use, never freed

	interruptor *interrupt.Interruptor
	uniqueID    atomic.Int64

	// domainLock/domainCond are the ownership-transfer rendezvous between
	// the mutator goroutine and this slot's backup goroutine (spec
	// section 3: "domain_lock (mutex), domain_cond (condvar)"), kept
	// distinct from the interruptor's own lock/cond, which exists purely
	// for STW poke rendezvous.
	domainLock sync.Mutex
	domainCond *sync.Cond

	backup       *backup.Worker
	backupCtx    context.Context
	backupCancel context.CancelFunc

	minorHeap minorheap.Slice
}

func newSlot(id int) *Slot {
	s := &Slot{id: id, interruptor: interrupt.New()}
	s.domainCond = sync.NewCond(&s.domainLock)
	return s
}

// ID implements stw.Participant.
func (s *Slot) ID() int { return s.id }

// Interruptor implements stw.Participant.
func (s *Slot) Interruptor() *interrupt.Interruptor { return s.interruptor }

// UniqueID returns the domain's unique_id, or 0 if the slot has never
// held a live domain.
func (s *Slot) UniqueID() int64 { return s.uniqueID.Load() }

// Running reports whether this slot currently holds a live domain.
func (s *Slot) Running() bool { return s.interruptor.Running() }

// State returns the slot's domain-state record, or nil if the slot has
// never been used.
func (s *Slot) State() *State { return s.state.Load() }

// ensureState allocates a State on first use of the slot; subsequent
// calls return the same pointer (slot state persists across reuse).
func (s *Slot) ensureState() *State {
	if st := s.state.Load(); st != nil {
		return st
	}
	fresh := &State{}
	if s.state.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return s.state.Load()
}

// MinorHeapArea returns this slot's [areaStart, areaEnd) slice of the
// shared minor-heap reservation.
func (s *Slot) MinorHeapArea() minorheap.Slice { return s.minorHeap }
