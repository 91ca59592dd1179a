// Package minorheap manages the single contiguous virtual-address region
// described in spec section 4.7: partitioned once into MaxDomains equal
// slices, committed/decommitted per slice on demand, and re-reserved only
// as an STW action (resize is driven by package domain's
// ResizeMinorHeapReservation through domain/stw, not by this package).
package minorheap

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/edsrzf/mmap-go"
	"github.com/pbnjay/memory"

	"github.com/erigontech/domaincore/domain/dlog"
)

var logger = dlog.New("minorheap")

// wordSize matches OCaml's boxed-value word size assumption for sizing
// purposes; domaincore only cares about byte extents.
const wordSize = 8

// Reservation is the [heaps_start, heaps_end) region, sliced into
// maxDomains equal pieces of size maxWords words each.
type Reservation struct {
	maxDomains int
	maxWords   int

	mapping mmap.MMap
	base    uintptr
	extent  uintptr // total byte length of the mapping

	slices []Slice
}

// Slice is one domain's [areaStart, areaEnd) range within the reservation.
type Slice struct {
	AreaStart uintptr
	AreaEnd   uintptr
}

// Reserve maps a fresh region sized maxDomains*maxWords*wordSize. Fatal
// per spec section 7 ("failure to reserve the initial minor-heap region")
// is the caller's responsibility: Reserve returns a plain error so the
// caller can decide whether to abort the process.
func Reserve(maxDomains, maxWords int) (*Reservation, error) {
	if maxDomains <= 0 || maxWords <= 0 {
		return nil, fmt.Errorf("minorheap: invalid dimensions maxDomains=%d maxWords=%d", maxDomains, maxWords)
	}
	totalBytes := int64(maxDomains) * int64(maxWords) * wordSize
	if avail := memory.FreeMemory(); avail > 0 && uint64(totalBytes) > avail {
		logger.Warn("minor-heap reservation exceeds reported free memory",
			"requested", datasize.ByteSize(totalBytes).HumanReadable(),
			"free", datasize.ByteSize(avail).HumanReadable())
	}

	m, err := mmap.MapRegion(nil, int(totalBytes), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("minorheap: reserve %s failed: %w", datasize.ByteSize(totalBytes).HumanReadable(), err)
	}

	r := &Reservation{
		maxDomains: maxDomains,
		maxWords:   maxWords,
		mapping:    m,
		extent:     uintptr(totalBytes),
	}
	if len(m) > 0 {
		r.base = uintptr(&m[0])
	}
	r.slices = make([]Slice, maxDomains)
	sliceBytes := uintptr(maxWords) * wordSize
	for i := 0; i < maxDomains; i++ {
		start := r.base + uintptr(i)*sliceBytes
		r.slices[i] = Slice{AreaStart: start, AreaEnd: start + sliceBytes}
	}
	logger.Info("reserved minor heap", "maxDomains", maxDomains, "maxWords", maxWords,
		"total", datasize.ByteSize(totalBytes).HumanReadable())
	return r, nil
}

// MaxWords is the per-domain slice size in words (minor_heap_max_words).
func (r *Reservation) MaxWords() int { return r.maxWords }

// Slice returns domain i's [areaStart, areaEnd) slice. Panics on an
// out-of-range index, matching an invariant violation rather than a
// recoverable condition.
func (r *Reservation) Slice(i int) Slice {
	return r.slices[i]
}

// Close unmaps the region. Callers must ensure no domain is still using
// its slice; the STW resize protocol in package domain (resize.go)
// enforces this.
func (r *Reservation) Close() error {
	if r.mapping == nil {
		return nil
	}
	err := r.mapping.Unmap()
	r.mapping = nil
	return err
}

// CommitSlice only range-checks the index: mmap.ANON pages are already
// zero-on-demand. DecommitSlice range-checks and then zeroes the slice
// (see below). They exist so the three-step resize protocol in package
// domain (resize.go) has explicit commit/decommit calls to make, matching
// spec section 4.7 step 1 ("free_minor_heap (decommits)") and step 3
// ("allocate_minor_heap").
func (r *Reservation) CommitSlice(i int) error {
	if i < 0 || i >= len(r.slices) {
		return fmt.Errorf("minorheap: commit: slice %d out of range", i)
	}
	return nil
}

func (r *Reservation) DecommitSlice(i int) error {
	if i < 0 || i >= len(r.slices) {
		return fmt.Errorf("minorheap: decommit: slice %d out of range", i)
	}
	s := r.slices[i]
	length := int(s.AreaEnd - s.AreaStart)
	if length <= 0 {
		return nil
	}
	off := int(s.AreaStart - r.base)
	if off < 0 || off+length > len(r.mapping) {
		return nil
	}
	// mmap-go exposes no madvise(DONTNEED) equivalent; zeroing the slice
	// is the portable stand-in for "decommit" used here, at the cost of
	// touching (rather than releasing) the pages.
	for j := off; j < off+length; j++ {
		r.mapping[j] = 0
	}
	return nil
}

// Resize performs the single-executor re-mapping step of spec section
// 4.7 step 2: unmap the whole reservation, grow/shrink maxWords, remap,
// and rewrite every slot's [areaStart, areaEnd). Must be called with
// every participant already past its own empty+decommit step, and by one
// caller only; package domain picks the first participant to take its
// resize mutex, not the barrier's last arriver.
func (r *Reservation) Resize(newMaxWords int) error {
	if newMaxWords <= 0 {
		return fmt.Errorf("minorheap: resize: invalid maxWords=%d", newMaxWords)
	}
	if err := r.Close(); err != nil {
		return fmt.Errorf("minorheap: resize: unmap failed: %w", err)
	}
	fresh, err := Reserve(r.maxDomains, newMaxWords)
	if err != nil {
		return fmt.Errorf("minorheap: resize: remap failed: %w", err)
	}
	*r = *fresh
	return nil
}
