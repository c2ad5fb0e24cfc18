package shard

import "github.com/joshuapare/hpakit/internal/lockrank"

// GrowLock returns the shard's growth lock. A process-wide fork sequence
// takes every shard's growth lock before any shard's local lock.
func (s *Shard) GrowLock() *lockrank.Mutex { return &s.growMu }

// LocalLock returns the lock guarding the slab set and descriptor cache.
func (s *Shard) LocalLock() *lockrank.Mutex { return &s.mu }

// Locks returns the shard's locks in acquisition order.
func (s *Shard) Locks() []*lockrank.Mutex {
	return []*lockrank.Mutex{&s.growMu, &s.mu}
}

// Prefork takes both shard locks. Use it only when forking with a single
// shard; with several, the arena registry interleaves them.
func (s *Shard) Prefork() { lockrank.LockAll(s.Locks()) }

// PostforkParent releases the locks taken by Prefork.
func (s *Shard) PostforkParent() { lockrank.UnlockAll(s.Locks()) }

// PostforkChild reinitializes the locks in the child.
func (s *Shard) PostforkChild() { lockrank.ReinitAll(s.Locks()) }
