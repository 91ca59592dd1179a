// Package stw implements the stop-the-world coordinator described in
// spec section 4.3: claim leadership, publish a request, poke every
// other participant, run the enter barrier, invoke the callback, cross
// the exit counter, release leadership.
//
// The package knows nothing about domain.Slot or domain.Registry
// directly — it operates over the small Participant/Source interfaces
// below, which domain.Slot and domain.Registry implement. This keeps
// domain -> stw a one-directional import.
package stw

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/erigontech/domaincore/domain/barrier"
	"github.com/erigontech/domaincore/domain/dlog"
	"github.com/erigontech/domaincore/domain/dmetrics"
	"github.com/erigontech/domaincore/domain/interrupt"
)

var logger = dlog.New("stw")

// Participant is the minimal view of a domain slot the coordinator needs.
type Participant interface {
	ID() int
	Interruptor() *interrupt.Interruptor
}

// Callback is the per-domain body run during an STW section. self is the
// participant the callback is running on behalf of; all is the full
// snapshot of participants for this section.
type Callback func(self Participant, data any, all []Participant)

// Source supplies the current dense prefix of participants; domain.Registry
// implements this.
type Source interface {
	Snapshot() []Participant
}

// request is stw_request: written by the leader between taking and
// releasing the claim lock, read by every other participant after being
// poked but before it decrements the exit counter. Participants other
// than the leader reach it only via Interruptor.Send's happens-before
// edge (sync/atomic Store/Load on the same variable synchronizes), so it
// is held behind an atomic.Pointer rather than a plain field.
type request struct {
	callback     Callback
	data         any
	participants []Participant
	sync         bool
}

// Coordinator is the process-wide (or Runtime-wide) STW arbiter. The zero
// value is not usable; construct with New.
type Coordinator struct {
	source Source

	// mu is the process-wide all_domains_lock (spec section 5): shared
	// with domain.Registry so that stw_leader, stw_requests_suspended,
	// the participant-prefix size, and next_domain_unique_id are all
	// guarded by the one lock the spec names, rather than three separate
	// Go mutexes that could be taken out of order.
	mu                    *sync.Mutex
	cond                  *sync.Cond // all_domains_cond
	requestsSuspendedCond *sync.Cond
	leader                Participant
	requestsSuspended     int

	current atomic.Pointer[request] // stw_request

	enterBarrier *barrier.Barrier
	innerBarrier *barrier.Barrier // reusable barrier exposed to callbacks
	exitCounter  barrier.ExitCounter
}

// New returns a Coordinator that draws its participant snapshot from src
// and shares allDomainsLock with the caller (domain.Registry) as the
// single all_domains_lock spec section 5 describes.
func New(src Source, allDomainsLock *sync.Mutex) *Coordinator {
	c := &Coordinator{
		source:       src,
		mu:           allDomainsLock,
		enterBarrier: barrier.New(),
		innerBarrier: barrier.New(),
	}
	c.cond = sync.NewCond(c.mu)
	c.requestsSuspendedCond = sync.NewCond(c.mu)
	return c
}

// InnerBarrier exposes the reusable barrier an STW callback can use to
// split its own work into synchronized phases.
func (c *Coordinator) InnerBarrier() *barrier.Barrier { return c.innerBarrier }

// SuspendRequests bumps stw_requests_suspended, forcing new STW claimants
// to wait until a matching ResumeRequests call. BeginDomainCreate applies
// the same bump internally when a spawner has waited two rounds; this
// pair is the explicit, caller-driven form of it.
func (c *Coordinator) SuspendRequests() {
	c.mu.Lock()
	c.requestsSuspended++
	c.mu.Unlock()
}

// ResumeRequests undoes one SuspendRequests call and wakes anyone waiting
// to claim leadership.
func (c *Coordinator) ResumeRequests() {
	c.mu.Lock()
	c.requestsSuspended--
	if c.requestsSuspended < 0 {
		c.requestsSuspended = 0
	}
	if c.requestsSuspended == 0 {
		c.requestsSuspendedCond.Broadcast()
	}
	c.mu.Unlock()
}

// InStw reports whether a section is currently in flight.
func (c *Coordinator) InStw() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader != nil
}

// WaitUntilIdle blocks until no STW is in flight. It takes the claim lock
// itself, so it must not be called with that lock held.
func (c *Coordinator) WaitUntilIdle() {
	c.mu.Lock()
	for c.leader != nil {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// BeginDomainCreate implements the claim half of spec section 4.5's
// domain_create: acquire all_domains_lock, wait while a section is in
// flight, and bump requestsSuspended after two rounds of waiting so a
// churn of STW claimants can't starve a spawner forever. It returns with
// the lock still held; the caller does its slot/registry bookkeeping
// under that same lock, then calls the returned release func once, which
// undoes any suspension bump and unlocks.
func (c *Coordinator) BeginDomainCreate() (release func()) {
	c.mu.Lock()
	rounds := 0
	suspendedHere := false
	for c.leader != nil {
		rounds++
		if rounds == 2 && !suspendedHere {
			c.requestsSuspended++
			suspendedHere = true
		}
		c.cond.Wait()
	}
	return func() {
		if suspendedHere {
			c.requestsSuspended--
			if c.requestsSuspended < 0 {
				c.requestsSuspended = 0
			}
			if c.requestsSuspended == 0 {
				c.requestsSuspendedCond.Broadcast()
			}
		}
		c.mu.Unlock()
	}
}

// TryRunOnAllDomains implements spec section 4.3's nine-step protocol.
// self is the calling participant. leaderSetup runs once, under the claim
// lock, before participants are poked; enterSpin runs once before self
// blocks at the enter barrier (sync mode only). It returns whether this
// call actually claimed leadership and ran the callback; on false, self
// is expected to have been poked by the actual winner and should drain it
// via HandleIncoming, then retry.
func (c *Coordinator) TryRunOnAllDomains(
	self Participant,
	sync bool,
	cb Callback,
	data any,
	leaderSetup func(all []Participant),
	enterSpin func(),
) bool {
	// Step 1: fast reject.
	if !c.mu.TryLock() {
		return false
	}
	if c.leader != nil {
		c.mu.Unlock()
		return false
	}

	// Step 2: claim, respecting the starvation mitigation.
	for c.requestsSuspended > 0 {
		c.requestsSuspendedCond.Wait()
	}
	if c.leader != nil {
		// Another claimant won while this one waited out the suspension.
		c.mu.Unlock()
		return false
	}
	c.leader = self

	// Step 3: publish the request record / snapshot participants.
	participants := c.source.Snapshot()
	c.exitCounter.Reset(len(participants))
	if sync {
		c.enterBarrier.Reset(len(participants))
	}
	c.current.Store(&request{callback: cb, data: data, participants: participants, sync: sync})

	// Step 4: leader setup, still under the claim lock.
	if leaderSetup != nil {
		leaderSetup(participants)
	}

	// Step 5: poke every participant but self.
	for _, p := range participants {
		if p.ID() == self.ID() {
			continue
		}
		p.Interruptor().Send()
	}

	// Step 6: release the claim lock; spawners/terminators wait on cond.
	c.mu.Unlock()

	dmetrics.StwRequestsTotal.Inc()
	timer := prometheus.NewTimer(dmetrics.StwDuration)
	defer timer.ObserveDuration()

	if traceEnabled {
		logger.Debug("stw claimed", "leader", self.ID(), "participants", len(participants), "sync", sync)
	}

	// Step 7: enter barrier (sync only).
	if sync {
		if enterSpin != nil {
			enterSpin()
		}
		c.enterBarrier.Arrive()
	}

	// Step 8: run the callback on self.
	dmetrics.StwCallbackInvocations.Inc()
	cb(self, data, participants)

	// Step 9: cross the exit counter; last one out releases leadership.
	c.release()

	return true
}

// HandleIncoming is the STW half of handle_incoming (the receiver clears
// its pending flag, then calls this; see domain.Handle's
// HandlePendingInterrupt): a participant that finds its own pending flag set (via polling at an
// allocation checkpoint, or via its backup thread while blocked) calls
// this instead of claiming leadership itself. enterSpin is optional work
// to do while waiting at the enter barrier. It is a no-op if there is no
// published request yet (a spurious or stale poke).
func (c *Coordinator) HandleIncoming(self Participant, enterSpin func()) bool {
	req := c.current.Load()
	if req == nil {
		return false
	}
	if req.sync {
		if enterSpin != nil {
			enterSpin()
		}
		c.enterBarrier.Arrive()
	}
	dmetrics.StwCallbackInvocations.Inc()
	req.callback(self, req.data, req.participants)
	c.release()
	return true
}

// release crosses the exit counter and, if this call drove it to zero,
// retakes the claim lock, clears the leader and published request, and
// broadcasts all_domains_cond.
func (c *Coordinator) release() {
	if !c.exitCounter.Decrement() {
		return
	}
	c.mu.Lock()
	c.leader = nil
	c.current.Store(nil)
	c.cond.Broadcast()
	c.mu.Unlock()
}

var traceEnabled bool

// SetTrace toggles verbose per-call logging (wired to domain/dbg.TraceSTW
// by the domain package at Runtime construction time).
func SetTrace(v bool) { traceEnabled = v }
