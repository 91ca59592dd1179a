package domain

import (
	"github.com/erigontech/domaincore/domain/dmetrics"
	"github.com/erigontech/domaincore/domain/stw"
)

// resizeRequest carries the target word count and owning Runtime through
// the STW callback closure.
type resizeRequest struct {
	rt       *Runtime
	newWords int
}

// ResizeMinorHeapReservation implements spec section 4.7's
// stw_resize_minor_heap_reservation: triggered when a domain asks for a
// larger minor heap than the reservation currently provides. It retries
// in a loop because a concurrent spawner may have bumped the requirement
// further while this call was in flight, matching the spec's retry note.
func (h *Handle) ResizeMinorHeapReservation(newWords int) error {
	rt := h.rt
	for {
		rt.resizeMu.Lock()
		if newWords > rt.resizeTarget {
			rt.resizeTarget = newWords
		}
		target := rt.resizeTarget
		rt.resizeMu.Unlock()

		if rt.MinorHeap.MaxWords() >= target {
			return nil
		}

		req := &resizeRequest{rt: rt, newWords: target}
		leaderSetup := func(all []stw.Participant) {
			rt.Coord.InnerBarrier().Reset(len(all))
		}
		ran := h.TryRunOnAllDomains(true, resizeCallback, req, leaderSetup, nil)
		if !ran {
			// Another leader holds the section (maybe someone else's
			// resize, maybe an unrelated STW); drain it and retry.
			continue
		}

		rt.resizeMu.Lock()
		done := rt.MinorHeap.MaxWords() >= rt.resizeTarget
		rt.resizeMu.Unlock()
		if done {
			dmetrics.MinorHeapResizeTotal.Inc()
			return nil
		}
		// A concurrent caller raised the target again mid-section; loop.
	}
}

// resizeCallback is the STW body for the reservation resize. It runs on
// every participant: steps 1 and 3 (empty own minor heap / decommit, then
// re-commit) happen per-participant; step 2 (unmap/grow/remap) happens
// exactly once. Every participant arrives at the inner barrier together
// (it's reset once, by the leader, before anyone is poked — see the
// leaderSetup closure above), then all race for resizeMu; the MaxWords
// guard inside the critical section makes only the first arriver's
// Resize call actually do anything, which is this protocol's "single
// executor" step.
func resizeCallback(self stw.Participant, data any, all []stw.Participant) {
	req := data.(*resizeRequest)
	rt := req.rt
	slot := self.(*Slot)

	// Step 1: every participant empties its own minor heap, then
	// decommits its slice. Emptying the minor heap is the opaque GC
	// collaborator named out of scope by spec.md section 1; only the
	// reservation bookkeeping below is this package's job.
	if rt.Hooks.EmptyMinorHeapOnce != nil {
		rt.Hooks.EmptyMinorHeapOnce(&Handle{rt: rt, slot: slot})
	}
	if err := rt.MinorHeap.DecommitSlice(slot.id); err != nil {
		// An allocation/reservation failure inside an STW callback is
		// fatal per SPEC_FULL section 7 and errors.go's Fatal contract:
		// every other participant is blocked on this section and cannot
		// make progress, so there is no recoverable path forward. Fatal
		// os.Exit's, so nothing below this call ever runs on this path.
		Fatal("minor heap decommit failed during resize: %v", err)
	}

	// Step 2: single-executor phase. Once every participant has arrived,
	// whichever takes resizeMu first does the remap; it is not tied to
	// the barrier's last arriver.
	rt.Coord.InnerBarrier().Arrive()
	rt.resizeMu.Lock()
	if rt.MinorHeap.MaxWords() < req.newWords {
		if err := rt.MinorHeap.Resize(req.newWords); err != nil {
			// Fatal exits the process; resizeMu is never unlocked on this
			// path (and must not be, since the reservation is now in an
			// unknown state after a failed remap).
			Fatal("minor heap reservation resize failed: %v", err)
		}
		for _, p := range all {
			p.(*Slot).minorHeap = rt.MinorHeap.Slice(p.ID())
		}
	}
	rt.resizeMu.Unlock()

	// Step 3: every participant re-allocates (commits) its own slice, for
	// NUMA locality, mirroring allocate_minor_heap(previous size).
	if err := rt.MinorHeap.CommitSlice(slot.id); err != nil {
		Fatal("minor heap commit failed during resize: %v", err)
	}
}
