package shard

import "github.com/joshuapare/hpakit/hpa/slabset"

// Stats is a snapshot of a shard. Slab counts are derived from the slab set
// at snapshot time rather than maintained incrementally.
type Stats struct {
	Arena uint32
	State State

	Slabs slabset.Stats

	Allocs         uint64
	Frees          uint64
	Expands        uint64
	ExpandFailures uint64
	Shrinks        uint64
	Grows          uint64 // shared slabs obtained from the central authority
	GrowFailures   uint64
	Dedicated      uint64 // dedicated slabs obtained
	Reclaims       uint64 // dedicated slabs returned on free

	ActiveBytes       uintptr // bytes in live regions
	CachedDescriptors int
}

// Stats returns a snapshot of the shard.
func (s *Shard) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Arena:             s.arena,
		State:             s.State(),
		Slabs:             s.set.Stats(),
		Allocs:            s.stats.allocs,
		Frees:             s.stats.frees,
		Expands:           s.stats.expands,
		ExpandFailures:    s.stats.expandFailures,
		Shrinks:           s.stats.shrinks,
		Grows:             s.stats.grows,
		GrowFailures:      s.stats.growFailures,
		Dedicated:         s.stats.dedicated,
		Reclaims:          s.stats.reclaims,
		ActiveBytes:       s.stats.activeBytes,
		CachedDescriptors: s.cache.Len(),
	}
}

// CheckInvariants verifies the slab set's bucket placement.
func (s *Shard) CheckInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.CheckInvariants()
}
