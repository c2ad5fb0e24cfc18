package shard

import (
	"fmt"

	"github.com/joshuapare/hpakit/hpa/slabset"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// Config holds a shard's size policy.
type Config struct {
	// SlabGoal is the size of each slab requested from the central authority.
	SlabGoal uintptr

	// SlabAllocMax is the largest request carved from a shared slab. Larger
	// requests get a dedicated slab, which bounds fragmentation of shared ones.
	SlabAllocMax uintptr

	// SmallMax is the largest request the shard attempts at all.
	SmallMax uintptr

	// LargeMin is the bypass threshold: requests this size or larger skip the
	// shard and go to the coarse path.
	LargeMin uintptr

	// CacheCapacity is the size of the local descriptor cache (0 = default).
	CacheCapacity int

	// Classes configures the slab set buckets (nil = slabset.DefaultConfig).
	Classes *slabset.ClassConfig
}

// DefaultConfig grows 2 MiB slabs, carves up to 256 KiB from them, serves up
// to 512 KiB with dedicated slabs and bypasses at 1 MiB.
var DefaultConfig = Config{
	SlabGoal:     pagefmt.HugePageSize,
	SlabAllocMax: 256 << 10,
	SmallMax:     512 << 10,
	LargeMin:     1 << 20,
}

// Validate checks the policy invariants.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    uintptr
	}{
		{"SlabGoal", c.SlabGoal},
		{"SlabAllocMax", c.SlabAllocMax},
		{"SmallMax", c.SmallMax},
		{"LargeMin", c.LargeMin},
	} {
		if f.v == 0 || !pagefmt.IsPageAligned(f.v) {
			return fmt.Errorf("%w: %s=%d is not a positive page multiple", ErrBadConfig, f.name, f.v)
		}
	}
	if c.SlabAllocMax > c.SlabGoal {
		return fmt.Errorf("%w: SlabAllocMax %d exceeds SlabGoal %d", ErrBadConfig, c.SlabAllocMax, c.SlabGoal)
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("%w: negative CacheCapacity", ErrBadConfig)
	}
	return nil
}
