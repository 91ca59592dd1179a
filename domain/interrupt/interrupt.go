// Package interrupt implements the per-domain mailbox described in
// spec section 4.1: a single interrupt-word pointer plus a pending flag,
// with a lock/condvar fallback for rendezvous when the receiver is
// blocked rather than polling.
package interrupt

import (
	"sync"
	"sync/atomic"
	"time"
)

// pollInterval bounds how long WaitPending can block before re-checking
// the stop channel; it is not a spin-wait, just a cap on condvar latency
// against external cancellation (sync.Cond has no native cancellation).
const pollInterval = 20 * time.Millisecond

// Max is the sentinel written through interrupt_word to force the next
// allocation check to trap into the runtime.
const Max = ^uintptr(0)

// Interruptor is one domain's mailbox. The zero value is not usable;
// construct with New.
type Interruptor struct {
	word    atomic.Pointer[uintptr] // interrupt_word: points at the domain's young_limit cell
	pending atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond

	running     atomic.Bool
	terminating atomic.Bool

	nudges atomic.Uint64 // bumped by Nudge so WaitPending can return on it
}

// New returns an Interruptor with no published word yet.
func New() *Interruptor {
	i := &Interruptor{}
	i.cond = sync.NewCond(&i.mu)
	return i
}

// PublishWord makes cell visible to interrupt_all_signal_safe with
// release ordering. Must be called before the owning slot is appended to
// the participant prefix (invariant 1 in spec section 3).
func (i *Interruptor) PublishWord(cell *uintptr) {
	i.word.Store(cell)
}

// Word returns the currently published cell, or nil if never published.
func (i *Interruptor) Word() *uintptr {
	return i.word.Load()
}

// Send pokes the target: sets pending, broadcasts the condvar, and writes
// Max through the interrupt word if one has been published. Safe to call
// from many goroutines concurrently; the word-write is what the mutator's
// allocation fast path observes with no lock taken on its side.
func (i *Interruptor) Send() {
	i.pending.Store(true)
	i.mu.Lock()
	i.cond.Broadcast()
	i.mu.Unlock()
	if w := i.word.Load(); w != nil {
		atomic.StoreUintptr(w, uintptr(Max))
	}
}

// Nudge wakes any goroutine blocked in WaitPending without setting
// pending, used to make a non-STW state transition (e.g. the backup
// thread's FSM moving to Terminate) observed promptly instead of waiting
// out pollInterval.
func (i *Interruptor) Nudge() {
	i.nudges.Add(1)
	i.mu.Lock()
	i.cond.Broadcast()
	i.mu.Unlock()
}

// HasPending reports whether a poke is outstanding.
func (i *Interruptor) HasPending() bool {
	return i.pending.Load()
}

// SetHandled clears the pending flag; called by the receiver as it enters
// the STW handler.
func (i *Interruptor) SetHandled() {
	i.pending.Store(false)
}

// WaitPending blocks until HasPending() would return true, Nudge is
// called, or stop is closed. Used by the backup thread while IN_BLOCKING.
// Implemented as a timed condvar wait rather than a plain Wait() so a
// closed stop channel is observed within pollInterval instead of leaking
// a waiter forever.
func (i *Interruptor) WaitPending(stop <-chan struct{}) {
	start := i.nudges.Load()
	for !i.pending.Load() && i.nudges.Load() == start {
		select {
		case <-stop:
			return
		default:
		}
		i.mu.Lock()
		if !i.pending.Load() && i.nudges.Load() == start {
			timer := time.AfterFunc(pollInterval, i.cond.Broadcast)
			i.cond.Wait()
			timer.Stop()
		}
		i.mu.Unlock()
	}
}

// SetRunning marks the domain as live/dead for diagnostics; mirrors the
// `running` flag on the C interruptor.
func (i *Interruptor) SetRunning(v bool)     { i.running.Store(v) }
func (i *Interruptor) Running() bool         { return i.running.Load() }
func (i *Interruptor) SetTerminating(v bool) { i.terminating.Store(v) }
func (i *Interruptor) Terminating() bool     { return i.terminating.Load() }
