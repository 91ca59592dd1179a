package domain

import "sync/atomic"

// AllocStats mirrors the GC allocation counters the spec says persist
// across slot reuse ("Allocated on first use of the slot; reused across
// successive domains on the same slot (GC allocation stats persist by
// design)" — spec section 3). Fields are atomic so Registry.RegistrySnapshot can
// read them without taking a domain's domainLock.
type AllocStats struct {
	MinorWordsAllocated atomic.Uint64
	MinorCollections    atomic.Uint64
	MajorWordsAllocated atomic.Uint64
}

// Snapshot returns a plain-value copy for logging/diagnostics.
func (s *AllocStats) Snapshot() AllocStatsView {
	return AllocStatsView{
		MinorWordsAllocated: s.MinorWordsAllocated.Load(),
		MinorCollections:    s.MinorCollections.Load(),
		MajorWordsAllocated: s.MajorWordsAllocated.Load(),
	}
}

// AllocStatsView is a non-atomic, copyable snapshot of AllocStats.
type AllocStatsView struct {
	MinorWordsAllocated uint64
	MinorCollections    uint64
	MajorWordsAllocated uint64
}
