// Package central implements the central growth authority: the one component
// that grows the shared backing store and hands fresh page slabs to shards.
//
// Two locks protect it. The growth lock serializes every growth decision, so
// concurrent shards that all miss at once wait for each other instead of each
// reserving more address space from the OS. The bookkeeping lock protects the
// reuse pool and counters; it is never held across an OS mapping call, so
// reclaims and stats reads do not stall behind a slow growth.
//
// Both locks rank after every shard lock and before the shared descriptor
// pool, whose lock Grow and Reclaim take.
package central

import (
	"errors"
	"fmt"

	"github.com/joshuapare/hpakit/hpa/backing"
	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/growth"
	"github.com/joshuapare/hpakit/hpa/slab"
	"github.com/joshuapare/hpakit/internal/lockrank"
	"github.com/joshuapare/hpakit/internal/logger"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// Config configures a Central.
type Config struct {
	Growth       growth.Config  // reservation sizing
	ReserveLimit uintptr        // cap on bytes reserved from the OS, 0 = unlimited
	Mapper       backing.Mapper // OS mapping primitive, nil = backing.OSMapper
}

// DefaultConfig uses the default growth curve and no reservation limit.
var DefaultConfig = Config{
	Growth: growth.DefaultConfig,
}

// Central is the growth authority shared by every shard.
type Central struct {
	growMu lockrank.Mutex // serializes growth; ranks before mu
	mu     lockrank.Mutex // bookkeeping

	arena   uint32
	pool    *edata.Pool
	backing *backing.Manager
	ctl     *growth.Controller // guarded by growMu

	// guarded by mu
	nextID    uint64
	liveSlabs int
	liveBytes uintptr
	target    uintptr // last controller target, mirrored for Stats
	stats     counters
}

type counters struct {
	growCalls    uint64
	growFailures uint64
	reuses       uint64
	reservations uint64
	reclaims     uint64
}

// Stats is a snapshot of the authority's accounting.
type Stats struct {
	Arena        uint32
	LiveSlabs    int     // slabs currently owned by shards
	LiveBytes    uintptr // bytes in those slabs
	GrowCalls    uint64
	GrowFailures uint64
	Reuses       uint64 // growths satisfied from reclaimed address space
	Reservations uint64 // growths that mapped new address space
	Reclaims     uint64
	Target       uintptr // current growth-controller target
	Backing      backing.Stats
}

// New initializes an authority bound to the shared descriptor pool. A nil
// config selects DefaultConfig.
func New(arena uint32, pool *edata.Pool, cfg *Config) (*Central, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil descriptor pool", ErrInit)
	}
	if cfg == nil {
		cfg = &DefaultConfig
	}
	ctl, err := growth.New(cfg.Growth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	c := &Central{
		arena:   arena,
		pool:    pool,
		backing: backing.New(cfg.Mapper, cfg.ReserveLimit),
		ctl:     ctl,
		target:  ctl.Target(),
	}
	c.growMu.Init(lockrank.RankCentralGrow)
	c.mu.Init(lockrank.RankCentral)
	return c, nil
}

// Arena returns the arena the authority is attached to.
func (c *Central) Arena() uint32 { return c.arena }

// Grow returns a new page slab of exactly size bytes. The slab is owned by the
// caller from here on.
func (c *Central) Grow(size uintptr) (*slab.Slab, error) {
	return c.grow(size, false)
}

// GrowDedicated returns a slab of exactly size bytes that backs one oversized
// region.
func (c *Central) GrowDedicated(size uintptr) (*slab.Slab, error) {
	return c.grow(size, true)
}

func (c *Central) grow(size uintptr, dedicated bool) (*slab.Slab, error) {
	if size == 0 || !pagefmt.IsPageAligned(size) {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}

	c.growMu.Lock()
	defer c.growMu.Unlock()

	c.mu.Lock()
	c.stats.growCalls++
	mem, ok := c.backing.Take(size)
	if ok {
		c.stats.reuses++
	}
	c.mu.Unlock()

	if !ok {
		var err error
		if mem, err = c.reserve(size); err != nil {
			return nil, err
		}
	}

	desc, err := c.pool.Acquire()
	if err != nil {
		c.mu.Lock()
		relErr := c.backing.Release(mem)
		c.stats.growFailures++
		c.mu.Unlock()
		return nil, errors.Join(fmt.Errorf("central: slab descriptor: %w", err), relErr)
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.liveSlabs++
	c.liveBytes += size
	c.mu.Unlock()

	desc.Init(c.arena, edata.SourcePageslab, id, mem)
	s := slab.New(desc, dedicated)
	logger.Debug("central: grew slab", "arena", c.arena, "slab", id, "size", size,
		"dedicated", dedicated, "reused", ok)
	return s, nil
}

// reserve maps a new reservation sized by the growth controller and carves
// size bytes out of it. Called with growMu held, mu not held.
func (c *Central) reserve(size uintptr) ([]byte, error) {
	want := c.ctl.Next(size)
	res, err := c.backing.Reserve(want, size)
	c.ctl.Record(uintptr(len(res)), err == nil)
	if err != nil {
		c.mu.Lock()
		c.stats.growFailures++
		c.target = c.ctl.Target()
		c.mu.Unlock()
		logger.Warn("central: growth failed", "arena", c.arena, "size", size, "want", want, "err", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.reservations++
	c.target = c.ctl.Target()
	c.backing.Adopt(res)
	mem, ok := c.backing.Take(size)
	if !ok {
		panic(fmt.Sprintf("central: fresh reservation of %d bytes cannot hold %d", len(res), size))
	}
	logger.Debug("central: reserved address space", "arena", c.arena, "size", len(res),
		"next_target", c.target)
	return mem, nil
}

// Reclaim takes back a slab that its shard no longer owns. The slab's pages
// are purged and its address range becomes reusable by any later Grow.
func (c *Central) Reclaim(s *slab.Slab) error {
	// The descriptor is reusable once released; read it first.
	id, mem, desc := s.ID(), s.Mem(), s.Desc()
	if err := c.backing.Purge(mem); err != nil {
		// Not fatal: the range is still reusable, just not returned to the OS.
		logger.Warn("central: purge failed", "arena", c.arena, "slab", id, "err", err)
	}

	c.mu.Lock()
	err := c.backing.Release(mem)
	if err == nil {
		c.liveSlabs--
		c.liveBytes -= uintptr(len(mem))
		c.stats.reclaims++
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("central: reclaim slab %d: %w", id, err)
	}

	c.pool.Release(desc)
	logger.Debug("central: reclaimed slab", "arena", c.arena, "slab", id, "size", len(mem))
	return nil
}

// Stats returns a snapshot of the accounting.
func (c *Central) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Arena:        c.arena,
		LiveSlabs:    c.liveSlabs,
		LiveBytes:    c.liveBytes,
		GrowCalls:    c.stats.growCalls,
		GrowFailures: c.stats.growFailures,
		Reuses:       c.stats.reuses,
		Reservations: c.stats.reservations,
		Reclaims:     c.stats.reclaims,
		Target:       c.target,
		Backing:      c.backing.Stats(),
	}
}

// Close unmaps all address space. Every slab must have been reclaimed.
func (c *Central) Close() error {
	c.growMu.Lock()
	defer c.growMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.liveSlabs != 0 {
		return fmt.Errorf("central: close with %d live slabs: %w", c.liveSlabs, backing.ErrBusy)
	}
	return c.backing.Close()
}
