package central

import "github.com/joshuapare/hpakit/internal/lockrank"

// Locks returns the authority's locks in acquisition order.
func (c *Central) Locks() []*lockrank.Mutex {
	return []*lockrank.Mutex{&c.growMu, &c.mu}
}

// Prefork acquires the growth lock, then the bookkeeping lock. It runs after
// every shard's prefork and before the shared descriptor pool's.
func (c *Central) Prefork() { lockrank.LockAll(c.Locks()) }

// PostforkParent releases the locks taken by Prefork.
func (c *Central) PostforkParent() { lockrank.UnlockAll(c.Locks()) }

// PostforkChild reinitializes the locks taken by Prefork.
func (c *Central) PostforkChild() { lockrank.ReinitAll(c.Locks()) }
