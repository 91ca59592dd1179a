// Package barrier implements the sense-reversing phased barrier and the
// exit counter described in spec section 4.2. Two Barrier instances live
// in the STW request record: domains_still_running (the enter barrier)
// and a reusable inner barrier exposed to callbacks that split work into
// phases.
package barrier

import (
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	// senseBit occupies the top bit of the packed word; the remaining
	// bits hold the arrival count, the same packed-word idiom used by
	// dijkstracula-go-ilock's four-state lock word.
	senseBit       = uint64(1) << 63
	countMask      = senseBit - 1
	maxSpinsMedium = 1 << 10
	maxSpinsLong   = 1 << 16
)

// Barrier is a reusable sense-reversing barrier for a fixed participant
// count known at Reset time.
type Barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	word  atomic.Uint64 // packed (sense<<63 | arrivals)
	total int
}

// New returns a Barrier with no participants configured; call Reset
// before first use.
func New() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Reset configures the barrier for a fresh round with n participants,
// preserving the current sense bit so a late arriver from the previous
// round can't be confused with the new one.
func (b *Barrier) Reset(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = n
	sense := b.word.Load() & senseBit
	b.word.Store(sense)
}

// pack/unpack of the arrival word.
func sense(word uint64) uint64 { return word & senseBit }
func count(word uint64) int    { return int(word & countMask) }

// Arrive registers the calling goroutine's arrival. If it is the last
// arriver it flips the sense bit and wakes everyone else; otherwise it
// blocks (spin then condvar) until the sense bit flips.
func (b *Barrier) Arrive() {
	b.mu.Lock()
	mySense := sense(b.word.Load())
	word := b.word.Add(1)
	if count(word) == b.total {
		// Last arriver: flip sense, reset count, wake waiters.
		b.word.Store(mySense ^ senseBit)
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.wait(mySense)
}

// wait blocks until the sense bit differs from startSense: a bounded spin
// (cheap, no syscalls) followed by a condvar block to avoid burning CPU
// under long STW callbacks.
func (b *Barrier) wait(startSense uint64) {
	for i := 0; i < maxSpinsMedium; i++ {
		if sense(b.word.Load()) != startSense {
			return
		}
	}
	for i := 0; i < maxSpinsLong; i++ {
		if sense(b.word.Load()) != startSense {
			return
		}
		runtime.Gosched()
	}
	b.mu.Lock()
	for sense(b.word.Load()) == startSense {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// ExitCounter implements num_domains_still_processing: not a barrier,
// each domain decrements and moves on; the last one to observe 1->0
// is responsible for releasing STW leadership.
type ExitCounter struct {
	n atomic.Int64
}

// Reset sets the counter to n.
func (e *ExitCounter) Reset(n int) { e.n.Store(int64(n)) }

// Decrement decrements the counter and reports whether this call drove
// it to zero.
func (e *ExitCounter) Decrement() (hitZero bool) {
	return e.n.Add(-1) == 0
}

// Remaining returns the current count, for diagnostics only.
func (e *ExitCounter) Remaining() int64 { return e.n.Load() }
