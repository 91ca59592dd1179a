package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/erigontech/domaincore/domain/backup"
	"github.com/erigontech/domaincore/domain/dlog"
	"github.com/erigontech/domaincore/domain/dmetrics"
)

var lifecycleLogger = dlog.New("lifecycle")

const spawnPollInterval = 10 * time.Millisecond

// Outcome is the published result of a domain's callback: a Go channel-
// based Future standing in for spec section 4.5 step 3's caller-supplied
// term-sync triple (state_slot, mutex, condvar) — Go has no equivalent of
// handing a raw (mutex, condvar) pair to another thread, so the result is
// delivered by closing a channel instead.
type Outcome struct {
	Value any
	Err   error
}

// Spawned is returned by Spawn once domain_create has completed: a
// handle to the new domain, plus a Future for its eventual Outcome.
type Spawned struct {
	Handle *Handle

	done    chan struct{}
	outcome Outcome
}

// Done is closed once the domain's callback has returned (or panicked);
// Outcome is only meaningful for reads after Done closes.
func (s *Spawned) Done() <-chan struct{} { return s.done }

// Outcome returns the domain's callback result.
func (s *Spawned) Outcome() Outcome { return s.outcome }

const (
	startupStarting int32 = iota
	startupReady
	startupFailed
)

// startup is the parent/child rendezvous record of spec section 4.5 step
// 1: "parent allocates a startup record with {parent, status=Starting,
// callback_values}".
type startup struct {
	mu     sync.Mutex
	cond   *sync.Cond
	status int32
	err    error
	slot   *Slot
}

func waitPoll(cond *sync.Cond, interval time.Duration) {
	timer := time.AfterFunc(interval, cond.Broadcast)
	cond.Wait()
	timer.Stop()
}

// Spawn creates a new domain (spec section 4.5). The parent waits for the
// child to finish domain_create, servicing its own pending STW interrupts
// in the wait loop exactly as the spec requires, so a spawn never stalls
// behind an in-flight STW section. fn runs on the new domain's own
// goroutine and is not awaited by Spawn; use the returned Spawned.Done to
// join it.
func Spawn(rt *Runtime, parent *Handle, fn func(h *Handle) (any, error)) (*Spawned, error) {
	su := &startup{}
	su.cond = sync.NewCond(&su.mu)
	sp := &Spawned{done: make(chan struct{})}

	go domainThreadFunc(rt, su, sp, fn)

	su.mu.Lock()
	for su.status == startupStarting {
		su.mu.Unlock()
		if parent != nil {
			parent.HandlePendingInterrupt()
		}
		su.mu.Lock()
		if su.status != startupStarting {
			break
		}
		waitPoll(su.cond, spawnPollInterval)
	}
	status, err, slot := su.status, su.err, su.slot
	su.mu.Unlock()

	if status == startupFailed {
		return nil, err
	}
	sp.Handle = &Handle{rt: rt, slot: slot}
	return sp, nil
}

// domainThreadFunc is domain_thread_func: domain_create, install the
// backup thread, run the user callback, publish its Outcome, then run the
// terminate loop.
func domainThreadFunc(rt *Runtime, su *startup, sp *Spawned, fn func(h *Handle) (any, error)) {
	slot, err := domainCreate(rt)

	su.mu.Lock()
	if err != nil {
		su.status = startupFailed
		su.err = err
		su.cond.Broadcast()
		su.mu.Unlock()
		close(sp.done)
		return
	}
	su.slot = slot
	su.status = startupReady
	su.cond.Broadcast()
	su.mu.Unlock()

	dmetrics.DomainsSpawnedTotal.Inc()
	rt.Hooks.fire(rt.Hooks.SpawnHook, slot.UniqueID())

	if err := installBackup(rt, slot); err != nil {
		lifecycleLogger.Warn("backup thread install failed", "domain", slot.id, "err", err)
	}
	rt.Hooks.fire(rt.Hooks.InitializeHook, slot.UniqueID())

	h := &Handle{rt: rt, slot: slot}
	sp.outcome = runCallback(h, fn)
	close(sp.done)

	domainTerminate(rt, slot)
}

// runCallback invokes fn, converting a panic into an Outcome.Err the way
// spec section 4.5 wraps the result as Ok(v) | Error(exn).
func runCallback(h *Handle, fn func(h *Handle) (any, error)) (result Outcome) {
	defer func() {
		if r := recover(); r != nil {
			result = Outcome{Err: fmt.Errorf("domain: callback panicked: %v", r)}
		}
	}()
	v, err := fn(h)
	return Outcome{Value: v, Err: err}
}

// domainCreate implements spec section 4.5 step 1. It returns with the
// new domain fully published (interrupt_word set, running=true, appended
// to the participant prefix) or unwinds whatever it already did and
// returns a plain error on failure.
func domainCreate(rt *Runtime) (*Slot, error) {
	reg := rt.Registry

	release := rt.Coord.BeginDomainCreate()
	defer release()

	slot := reg.acquireFreeSlot()
	if slot == nil {
		return nil, fmt.Errorf("domain: %w", ErrNoFreeSlot)
	}

	slot.domainLock.Lock()
	defer slot.domainLock.Unlock()

	st := slot.ensureState()
	st.reset()

	// Publish interrupt_word before the slot is appended to the
	// participant prefix (invariant 1): a concurrent STW's Snapshot must
	// never see a participant whose interrupt_word isn't live yet.
	slot.interruptor.PublishWord(&st.YoungLimit)

	if err := rt.MinorHeap.CommitSlice(slot.id); err != nil {
		slot.interruptor.PublishWord(nil) // unwind in reverse order
		return nil, fmt.Errorf("domain: %w: %v", ErrCreationFailed, err)
	}
	slot.minorHeap = rt.MinorHeap.Slice(slot.id)

	uid := reg.allocUniqueID()
	slot.uniqueID.Store(uid)
	slot.interruptor.SetRunning(true)

	// BeginDomainCreate already holds reg.mu (shared with the
	// coordinator's all_domains_lock) for the duration of this call, so
	// publishParticipant is safe to call directly here.
	reg.publishParticipant(slot)

	return slot, nil
}

// domainTerminate implements spec section 4.5 step 4. The sweeping/
// marking/ephemeron-orphaning steps are opaque GC callbacks (spec.md
// section 1 names them out of scope); they fire as no-ops unless the
// embedding program supplied Hooks for them.
func domainTerminate(rt *Runtime, slot *Slot) {
	reg := rt.Registry
	h := &Handle{rt: rt, slot: slot}
	slot.interruptor.SetTerminating(true)

	for {
		rt.Hooks.fireHandle(rt.Hooks.FinishSweeping, h)
		rt.Hooks.fireHandle(rt.Hooks.EmptyMinorHeapOnce, h)
		rt.Hooks.fireHandle(rt.Hooks.FinishMarking, h)
		rt.Hooks.fireHandle(rt.Hooks.OrphanEphemerons, h)
		rt.Hooks.fireHandle(rt.Hooks.OrphanFinalisers, h)

		reg.mu.Lock()
		if !slot.interruptor.HasPending() {
			slot.interruptor.SetTerminating(false)
			slot.interruptor.SetRunning(false)
			reg.removeParticipant(slot)
			reg.mu.Unlock()
			break
		}
		reg.mu.Unlock()

		// A poke arrived while winding down; service it like any other
		// participant, then loop back and re-check the exit condition.
		// SetHandled must run before HandleIncoming (handle.go's
		// HandlePendingInterrupt and backup.go's service path both do the
		// same), or HasPending stays true forever and this loop either
		// double-Arrives the next in-flight section or spins forever once
		// there's no section left to join.
		slot.interruptor.SetHandled()
		rt.Coord.HandleIncoming(slot, nil)
	}

	rt.Hooks.fire(rt.Hooks.StopHook, slot.UniqueID())
	rt.Hooks.fire(rt.Hooks.TerminatedHook, slot.UniqueID())

	slot.domainLock.Lock()
	if slot.backup != nil {
		slot.backup.SetState(backup.Terminate)
	}
	slot.domainLock.Unlock()

	if slot.backupCancel != nil {
		slot.backupCancel()
	}
	if slot.backup != nil {
		<-slot.backup.Reaped()
	}

	dmetrics.DomainsTerminatedTotal.Inc()
}

// Fork reinitializes coordination state to reflect a POSIX-fork-like
// event (spec section 4.5's Fork): every domain except self vanished,
// along with their backup threads. Go's sync.Mutex/sync.Cond hold no OS
// resource analogous to a pthread_mutex/pthread_cond, so unlike the
// source runtime there is nothing to re-init; Fork's entire job is
// clearing the bookkeeping a vanished domain left behind.
func (rt *Runtime) Fork(self *Handle) {
	reg := rt.Registry
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, s := range reg.slots {
		if s == self.slot {
			continue
		}
		s.interruptor.SetRunning(false)
		s.backup = nil
		s.backupCancel = nil
		s.backupCtx = nil
	}
	reg.participantOrder = []int{self.slot.id}
	reg.nextUniqueID = self.slot.UniqueID() + 1
	if reg.nextUniqueID == 0 {
		reg.nextUniqueID = 1
	}

	if rt.Hooks.AtforkHook != nil {
		rt.Hooks.AtforkHook()
	}
}
