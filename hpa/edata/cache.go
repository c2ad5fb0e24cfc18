package edata

const (
	// DefaultCacheCapacity is the number of descriptors a shard keeps locally.
	DefaultCacheCapacity = 16

	// cacheFill is how many descriptors a refill pulls from the shared pool.
	cacheFill = 4
)

// Cache is a small, fixed-capacity descriptor cache in front of a Pool.
//
// Cache has no lock of its own; the owning shard's lock guards it.
type Cache struct {
	pool     *Pool
	free     []*Extent
	capacity int
	disabled bool
}

// NewCache creates a cache that refills from and spills to pool.
// capacity <= 0 selects DefaultCacheCapacity.
func NewCache(pool *Pool, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		pool:     pool,
		free:     make([]*Extent, 0, capacity),
		capacity: capacity,
	}
}

// Acquire returns a zeroed descriptor, refilling from the shared pool when the
// cache is empty. A disabled cache forwards straight to the pool.
func (c *Cache) Acquire() (*Extent, error) {
	if c.disabled {
		return c.pool.Acquire()
	}
	if len(c.free) == 0 {
		c.free = c.pool.acquireBatch(c.free, min(cacheFill, c.capacity))
		if len(c.free) == 0 {
			return nil, ErrExhausted
		}
	}
	n := len(c.free) - 1
	e := c.free[n]
	c.free[n] = nil
	c.free = c.free[:n]
	e.pooled = false
	return e, nil
}

// Release hands e back. Descriptors beyond capacity, or any descriptor once
// the cache is disabled, go to the shared pool.
func (c *Cache) Release(e *Extent) {
	if e.pooled {
		panic("edata: descriptor released twice: " + e.String())
	}
	if c.disabled || len(c.free) >= c.capacity {
		c.pool.Release(e)
		return
	}
	e.reset()
	e.pooled = true
	c.free = append(c.free, e)
}

// Flush returns every cached descriptor to the shared pool.
func (c *Cache) Flush() {
	if len(c.free) == 0 {
		return
	}
	c.pool.mu.Lock()
	for i, e := range c.free {
		e.pooled = false
		c.pool.releaseLocked(e)
		c.free[i] = nil
	}
	c.pool.mu.Unlock()
	c.free = c.free[:0]
}

// Disable flushes the cache and makes it a pass-through. Calling it again is a
// no-op.
func (c *Cache) Disable() {
	c.Flush()
	c.disabled = true
}

// Disabled reports whether Disable has been called.
func (c *Cache) Disabled() bool { return c.disabled }

// Len returns the number of cached descriptors.
func (c *Cache) Len() int { return len(c.free) }
