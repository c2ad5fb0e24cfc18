// Package edata provides the descriptor records that describe an extent of
// pages, and the two pools that recycle them.
//
// # Extents
//
// An Extent names a page-aligned address range and the memory behind it. The
// same record type describes a whole page slab (Source == SourcePageslab), a
// region carved out of a slab (SourceSlab) and a region served by the coarse
// direct path (SourceDirect). Regions refer to their owning slab by handle
// (Extent.Slab), never by pointer, so slab ownership can move from the central
// authority to a shard by handing over one value.
//
// # Pools
//
// Pool is the shared, internally locked descriptor pool. The central growth
// authority uses it for the infrequent act of creating slabs.
//
// Cache is a small fixed-capacity front for a Pool, owned by one shard and
// guarded by that shard's lock. Shards allocate regions far more often than
// slabs are created, so they recycle descriptors locally and only touch the
// shared pool to refill or spill.
//
// Releasing a descriptor that is already pooled is an invariant violation and
// panics.
package edata
