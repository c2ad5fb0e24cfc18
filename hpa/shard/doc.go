// Package shard implements an allocation shard: a per-arena page allocator
// that carves page-granular regions out of huge-page-sized slabs.
//
// A shard keeps its slabs in a slab set bucketed by longest free run, so a
// request goes to the fullest slab that can still hold it. When nothing fits
// the shard asks the central authority for one more slab of SlabGoal bytes.
//
// Two locks guard a shard. The growth lock is held for the whole miss path,
// so one shard never has two growth requests outstanding and a request that
// waited for the lock re-checks the set before growing. The local lock guards
// the slab set and the descriptor cache and is dropped before calling into
// the central authority. The growth lock ranks first.
//
// Size policy:
//
//	size <= SlabAllocMax             carved from a shared slab
//	SlabAllocMax < size <= SmallMax  backed by a dedicated slab
//	size > SmallMax                  rejected with ErrTooLarge
//	size >= LargeMin                 rejected with ErrTooLarge
//
// Requests bigger than SlabAllocMax never land in a shared slab even when one
// has room, which keeps a few large regions from pinning mostly-empty slabs.
package shard
