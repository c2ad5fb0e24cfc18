// Package slab models one page slab: a page-aligned range handed to a shard
// by the central authority and subdivided page by page into regions.
//
// Page occupancy is a bitmap. Regions are placed first fit (lowest address),
// which keeps the tail of a slab free for in-place expansion and lets the
// slab set rank slabs by their longest free run.
//
// A Slab is not safe for concurrent use; its owning shard's lock guards it.
package slab

import (
	"fmt"
	"unsafe"

	"github.com/bits-and-blooms/bitset"

	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// Slab is one page slab.
type Slab struct {
	desc      *edata.Extent
	mem       []byte
	npages    int
	active    *bitset.BitSet // bit i set = page i is part of a live region
	nactive   int
	longest   int // longest run of free pages
	dedicated bool
}

// New wraps the slab descriptor desc, whose memory must be page aligned.
// A dedicated slab backs exactly one oversized region.
func New(desc *edata.Extent, dedicated bool) *Slab {
	mem := desc.Bytes()
	if !pagefmt.IsPageAligned(uintptr(len(mem))) || len(mem) == 0 {
		panic(fmt.Sprintf("slab: size %d is not a positive page multiple", len(mem)))
	}
	n := pagefmt.Pages(uintptr(len(mem)))
	return &Slab{
		desc:      desc,
		mem:       mem,
		npages:    n,
		active:    bitset.New(uint(n)),
		longest:   n,
		dedicated: dedicated,
	}
}

// ID returns the slab handle regions refer to.
func (s *Slab) ID() uint64 { return s.desc.Slab }

// Desc returns the descriptor of the whole slab.
func (s *Slab) Desc() *edata.Extent { return s.desc }

// Mem returns the slab memory.
func (s *Slab) Mem() []byte { return s.mem }

// Addr returns the slab base address.
func (s *Slab) Addr() uintptr { return s.desc.Addr }

// Size returns the slab size in bytes.
func (s *Slab) Size() uintptr { return uintptr(len(s.mem)) }

// Pages returns the slab size in pages.
func (s *Slab) Pages() int { return s.npages }

// Active returns the number of pages in live regions.
func (s *Slab) Active() int { return s.nactive }

// LongestFree returns the longest run of free pages.
func (s *Slab) LongestFree() int { return s.longest }

// Empty reports whether no region is live.
func (s *Slab) Empty() bool { return s.nactive == 0 }

// Dedicated reports whether the slab backs a single oversized region.
func (s *Slab) Dedicated() bool { return s.dedicated }

// Reserve marks the lowest-addressed run of npages free pages active and
// returns its first page index.
func (s *Slab) Reserve(npages int) (int, bool) {
	if npages <= 0 || npages > s.longest {
		return 0, false
	}
	idx := s.findRun(0, npages)
	if idx < 0 {
		// longest said a run exists; the bitmap disagrees.
		panic(fmt.Sprintf("slab %d: longest free run %d but no run of %d pages", s.ID(), s.longest, npages))
	}
	s.setRange(idx, npages, true)
	s.nactive += npages
	s.recomputeLongest()
	return idx, true
}

// Extend grows the region at [idx, idx+oldPages) to newPages in place. It
// fails without side effects when the following pages are not all free.
func (s *Slab) Extend(idx, oldPages, newPages int) bool {
	if newPages <= oldPages {
		return newPages == oldPages
	}
	end := idx + newPages
	if end > s.npages {
		return false
	}
	for p := idx + oldPages; p < end; p++ {
		if s.isActive(p) {
			return false
		}
	}
	s.setRange(idx+oldPages, newPages-oldPages, true)
	s.nactive += newPages - oldPages
	s.recomputeLongest()
	return true
}

// Release frees npages pages starting at idx. Every page must be active.
func (s *Slab) Release(idx, npages int) {
	if idx < 0 || npages <= 0 || idx+npages > s.npages {
		panic(fmt.Sprintf("slab %d: release [%d, %d) out of range (%d pages)", s.ID(), idx, idx+npages, s.npages))
	}
	for p := idx; p < idx+npages; p++ {
		if !s.isActive(p) {
			panic(fmt.Sprintf("slab %d: release of free page %d", s.ID(), p))
		}
	}
	s.setRange(idx, npages, false)
	s.nactive -= npages
	s.recomputeLongest()
}

// Region returns the memory of npages pages starting at idx.
func (s *Slab) Region(idx, npages int) []byte {
	lo := pagefmt.Bytes(idx)
	hi := lo + pagefmt.Bytes(npages)
	return s.mem[lo:hi:hi]
}

// PageOf returns the page index holding addr.
func (s *Slab) PageOf(addr uintptr) (int, bool) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(s.mem)))
	if addr < base || addr >= base+uintptr(len(s.mem)) {
		return 0, false
	}
	return pagefmt.Pages((addr - base) &^ pagefmt.PageMask), true
}

func (s *Slab) String() string {
	return fmt.Sprintf("slab{id=%d pages=%d active=%d longest=%d dedicated=%t}",
		s.ID(), s.npages, s.nactive, s.longest, s.dedicated)
}

// ============================================================================
// Bitmap helpers
// ============================================================================

func (s *Slab) isActive(p int) bool {
	return s.active.Test(uint(p))
}

func (s *Slab) setRange(idx, n int, on bool) {
	for p := uint(idx); p < uint(idx+n); p++ {
		if on {
			s.active.Set(p)
		} else {
			s.active.Clear(p)
		}
	}
}

// freeRun returns the first run of free pages at or after from as [start, end).
func (s *Slab) freeRun(from int) (int, int, bool) {
	start, ok := s.active.NextClear(uint(from))
	if !ok || int(start) >= s.npages {
		return 0, 0, false
	}
	end, ok := s.active.NextSet(start)
	if !ok || int(end) > s.npages {
		end = uint(s.npages)
	}
	return int(start), int(end), true
}

// findRun returns the first index >= from starting n free pages, or -1.
func (s *Slab) findRun(from, n int) int {
	for p := from; p < s.npages; {
		start, end, ok := s.freeRun(p)
		if !ok {
			return -1
		}
		if end-start >= n {
			return start
		}
		p = end
	}
	return -1
}

func (s *Slab) recomputeLongest() {
	longest := 0
	for p := 0; p < s.npages; {
		start, end, ok := s.freeRun(p)
		if !ok {
			break
		}
		longest = max(longest, end-start)
		p = end
	}
	s.longest = longest
}
