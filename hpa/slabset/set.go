// Package slabset tracks a shard's page slabs by free space.
//
// Slabs are bucketed by their longest run of free pages. Each bucket is a
// min-heap so the best fit inside a bucket is at the top; one extra bucket
// holds full slabs, which are never searched.
//
// A Set is not safe for concurrent use; the owning shard's lock guards it.
package slabset

import (
	"container/heap"
	"fmt"

	"github.com/joshuapare/hpakit/hpa/slab"
)

// Set is the collection of page slabs owned by one shard.
type Set struct {
	table   *classTable
	buckets []slabHeap // numClasses + 1 (overflow)
	full    map[uint64]*entry
	entries map[uint64]*entry
}

// BinStats aggregates the slabs of one bucket.
type BinStats struct {
	Slabs    int // page slabs in the bucket
	Active   int // pages in live regions
	Inactive int // free pages
}

func (b *BinStats) add(s *slab.Slab) {
	b.Slabs++
	b.Active += s.Active()
	b.Inactive += s.Pages() - s.Active()
}

// Stats is a derived snapshot of the set, one BinStats per free-space class.
type Stats struct {
	Full    BinStats
	Classes []BinStats
	Bounds  []int // inclusive longest-free upper bound of each class, in pages; -1 = unbounded
}

// Total folds every bucket into one BinStats.
func (s Stats) Total() BinStats {
	t := s.Full
	for _, c := range s.Classes {
		t.Slabs += c.Slabs
		t.Active += c.Active
		t.Inactive += c.Inactive
	}
	return t
}

// New creates an empty set. A nil config selects DefaultConfig.
func New(config *ClassConfig) *Set {
	if config == nil {
		config = &DefaultConfig
	}
	t := newClassTable(*config)
	return &Set{
		table:   t,
		buckets: make([]slabHeap, t.numClasses+1),
		full:    make(map[uint64]*entry),
		entries: make(map[uint64]*entry),
	}
}

// NumClasses returns the number of free-space classes, overflow included.
func (st *Set) NumClasses() int { return len(st.buckets) }

// Len returns the number of slabs in the set.
func (st *Set) Len() int { return len(st.entries) }

// Lookup returns the slab with the given handle.
func (st *Set) Lookup(id uint64) (*slab.Slab, bool) {
	e, ok := st.entries[id]
	if !ok {
		return nil, false
	}
	return e.slab, true
}

// Insert adds s. Inserting a slab twice is an invariant violation.
func (st *Set) Insert(s *slab.Slab) {
	if _, dup := st.entries[s.ID()]; dup {
		panic(fmt.Sprintf("slabset: %s inserted twice", s))
	}
	e := &entry{slab: s}
	st.entries[s.ID()] = e
	st.place(e)
}

// Remove drops s from the set.
func (st *Set) Remove(s *slab.Slab) {
	e := st.mustEntry(s)
	st.unplace(e)
	delete(st.entries, s.ID())
}

// Update re-buckets s after its free space changed.
func (st *Set) Update(s *slab.Slab) {
	e := st.mustEntry(s)
	want := st.bucketFor(s)
	if want == e.bucket && want != bucketFull {
		heap.Fix(&st.buckets[want], e.heapIndex)
		return
	}
	if want == e.bucket {
		return
	}
	st.unplace(e)
	st.place(e)
}

// Fit returns the slab whose longest free run is the smallest one holding
// npages pages, or nil. The full bucket is never searched.
func (st *Set) Fit(npages int) *slab.Slab {
	if npages <= 0 {
		return nil
	}
	start := st.table.classOf(npages)

	// The starting class may hold runs shorter than npages; scan it for the
	// smallest run that still fits.
	var best *slab.Slab
	for _, e := range st.buckets[start] {
		s := e.slab
		if s.LongestFree() < npages {
			continue
		}
		if best == nil || s.LongestFree() < best.LongestFree() ||
			(s.LongestFree() == best.LongestFree() && s.ID() < best.ID()) {
			best = s
		}
	}
	if best != nil {
		return best
	}

	// Every slab in a higher class fits; the heap top is the best.
	for c := start + 1; c < len(st.buckets); c++ {
		if st.buckets[c].Len() > 0 {
			return st.buckets[c][0].slab
		}
	}
	return nil
}

// Slabs returns every slab in the set, in no particular order.
func (st *Set) Slabs() []*slab.Slab {
	out := make([]*slab.Slab, 0, len(st.entries))
	for _, e := range st.entries {
		out = append(out, e.slab)
	}
	return out
}

// Stats derives per-class statistics.
func (st *Set) Stats() Stats {
	s := Stats{
		Classes: make([]BinStats, len(st.buckets)),
		Bounds:  make([]int, len(st.buckets)),
	}
	for c := range st.buckets {
		s.Bounds[c] = st.table.upperBound(c)
		if c == st.table.numClasses {
			s.Bounds[c] = -1
		}
		for _, e := range st.buckets[c] {
			s.Classes[c].add(e.slab)
		}
	}
	for _, e := range st.full {
		s.Full.add(e.slab)
	}
	return s
}

// CheckInvariants verifies that every slab sits in exactly the bucket its
// free space calls for.
func (st *Set) CheckInvariants() error {
	seen := 0
	for c := range st.buckets {
		for i, e := range st.buckets[c] {
			if e.heapIndex != i || e.bucket != c {
				return fmt.Errorf("slabset: %s recorded at bucket %d/%d, found at %d/%d",
					e.slab, e.bucket, e.heapIndex, c, i)
			}
			if want := st.bucketFor(e.slab); want != c {
				return fmt.Errorf("slabset: %s in bucket %d, belongs in %d", e.slab, c, want)
			}
			seen++
		}
	}
	for _, e := range st.full {
		if e.slab.LongestFree() != 0 {
			return fmt.Errorf("slabset: %s in full bucket with free pages", e.slab)
		}
		seen++
	}
	if seen != len(st.entries) {
		return fmt.Errorf("slabset: %d slabs indexed, %d bucketed", len(st.entries), seen)
	}
	return nil
}

// ============================================================================
// Internal helpers
// ============================================================================

func (st *Set) bucketFor(s *slab.Slab) int {
	if s.LongestFree() == 0 {
		return bucketFull
	}
	return st.table.classOf(s.LongestFree())
}

func (st *Set) place(e *entry) {
	e.bucket = st.bucketFor(e.slab)
	if e.bucket == bucketFull {
		if _, dup := st.full[e.slab.ID()]; dup {
			panic(fmt.Sprintf("slabset: %s already in the full bucket", e.slab))
		}
		e.heapIndex = -1
		st.full[e.slab.ID()] = e
		return
	}
	heap.Push(&st.buckets[e.bucket], e)
}

func (st *Set) unplace(e *entry) {
	if e.bucket == bucketFull {
		delete(st.full, e.slab.ID())
		return
	}
	h := &st.buckets[e.bucket]
	if e.heapIndex < 0 || e.heapIndex >= h.Len() || (*h)[e.heapIndex] != e {
		panic(fmt.Sprintf("slabset: %s not at its recorded position in bucket %d", e.slab, e.bucket))
	}
	heap.Remove(h, e.heapIndex)
}

func (st *Set) mustEntry(s *slab.Slab) *entry {
	e, ok := st.entries[s.ID()]
	if !ok || e.slab != s {
		panic(fmt.Sprintf("slabset: %s is not in this set", s))
	}
	return e
}
