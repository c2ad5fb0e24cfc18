package shard

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/joshuapare/hpakit/hpa/central"
	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/pai"
	"github.com/joshuapare/hpakit/hpa/slab"
	"github.com/joshuapare/hpakit/hpa/slabset"
	"github.com/joshuapare/hpakit/internal/lockrank"
	"github.com/joshuapare/hpakit/internal/logger"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// State is a shard's lifecycle state.
type State int32

const (
	StateActive State = iota
	StateDisabling
	StateDisabled
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisabling:
		return "disabling"
	case StateDisabled:
		return "disabled"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Shard is one allocation shard. It serves small page-granular requests from
// its own set of page slabs and asks the central authority for a new slab when
// none fits.
type Shard struct {
	// growMu serializes this shard's trips to the central authority.
	growMu lockrank.Mutex
	_      cpu.CacheLinePad
	// mu guards set, cache and stats. It is never held across a Grow call.
	mu lockrank.Mutex
	_  cpu.CacheLinePad

	state atomic.Int32

	central *central.Central
	arena   uint32
	cfg     Config

	set   *slabset.Set
	cache *edata.Cache
	stats counters
}

var _ pai.PageAllocator = (*Shard)(nil)

type counters struct {
	allocs         uint64
	frees          uint64
	expands        uint64
	expandFailures uint64
	shrinks        uint64
	grows          uint64
	growFailures   uint64
	dedicated      uint64
	reclaims       uint64
	activeBytes    uintptr
}

// New initializes the shard for arena, bound to c and the shared descriptor
// pool. A nil config selects DefaultConfig.
func New(c *central.Central, pool *edata.Pool, arena uint32, cfg *Config) (*Shard, error) {
	if c == nil || pool == nil {
		return nil, fmt.Errorf("%w: nil central authority or descriptor pool", ErrBadConfig)
	}
	if cfg == nil {
		cfg = &DefaultConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Shard{
		central: c,
		arena:   arena,
		cfg:     *cfg,
		set:     slabset.New(cfg.Classes),
		cache:   edata.NewCache(pool, cfg.CacheCapacity),
	}
	s.growMu.Init(lockrank.RankShardGrow)
	s.mu.Init(lockrank.RankShard)
	return s, nil
}

// Arena returns the arena the shard allocates for.
func (s *Shard) Arena() uint32 { return s.arena }

// Config returns the shard's size policy.
func (s *Shard) Config() Config { return s.cfg }

// SmallMax is the largest request the shard will attempt.
func (s *Shard) SmallMax() uintptr { return s.cfg.SmallMax }

// LargeMin is the size at and above which requests bypass the shard.
func (s *Shard) LargeMin() uintptr { return s.cfg.LargeMin }

// State returns the lifecycle state.
func (s *Shard) State() State { return State(s.state.Load()) }

// Disabled reports whether Disable or Destroy has been called. A disabled
// shard still serves requests; callers use this to route around it.
func (s *Shard) Disabled() bool { return s.State() != StateActive }

// ============================================================================
// Allocation
// ============================================================================

// Alloc returns a region of size bytes rounded up to whole pages.
//
// Requests up to SlabAllocMax are carved from shared slabs. Larger ones, up to
// SmallMax, each get a dedicated slab. Anything bigger, or at LargeMin and
// above, fails with ErrTooLarge without being attempted.
func (s *Shard) Alloc(size uintptr) (*edata.Extent, error) {
	if s.State() == StateDestroyed {
		return nil, ErrDestroyed
	}
	if size == 0 {
		return nil, pai.ErrBadSize
	}
	aligned, ok := pagefmt.CheckedAlignPage(size)
	if !ok || aligned > s.cfg.SmallMax || aligned >= s.cfg.LargeMin {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	size = aligned
	if size > s.cfg.SlabAllocMax {
		return s.allocDedicated(size)
	}
	return s.allocShared(size)
}

func (s *Shard) allocShared(size uintptr) (*edata.Extent, error) {
	npages := pagefmt.Pages(size)

	s.mu.Lock()
	e, err := s.fitLocked(npages)
	s.mu.Unlock()
	if err != errNoFit {
		return e, err
	}

	s.growMu.Lock()
	defer s.growMu.Unlock()

	// Another allocation may have grown the set while we waited.
	s.mu.Lock()
	e, err = s.fitLocked(npages)
	s.mu.Unlock()
	if err != errNoFit {
		return e, err
	}

	ps, err := s.central.Grow(s.cfg.SlabGoal)
	if err != nil {
		s.mu.Lock()
		s.stats.growFailures++
		s.mu.Unlock()
		return nil, fmt.Errorf("shard %d: grow for %d bytes: %w", s.arena, size, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set.Insert(ps)
	s.stats.grows++
	e, err = s.fitLocked(npages)
	if err == errNoFit {
		return nil, fmt.Errorf("%w: %d pages after growing a %d-byte slab", ErrNoSpace, npages, s.cfg.SlabGoal)
	}
	return e, err
}

// fitLocked carves npages from the best-fitting slab. It returns errNoFit when
// no slab in the set has a long enough free run.
func (s *Shard) fitLocked(npages int) (*edata.Extent, error) {
	ps := s.set.Fit(npages)
	if ps == nil {
		return nil, errNoFit
	}
	e, err := s.cache.Acquire()
	if err != nil {
		return nil, fmt.Errorf("shard %d: region descriptor: %w", s.arena, err)
	}
	idx, ok := ps.Reserve(npages)
	if !ok {
		panic(fmt.Sprintf("shard %d: %s chosen by fit cannot hold %d pages", s.arena, ps, npages))
	}
	s.set.Update(ps)
	e.Init(s.arena, edata.SourceSlab, ps.ID(), ps.Region(idx, npages))
	s.stats.allocs++
	s.stats.activeBytes += e.Size
	return e, nil
}

func (s *Shard) allocDedicated(size uintptr) (*edata.Extent, error) {
	s.mu.Lock()
	e, err := s.cache.Acquire()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("shard %d: region descriptor: %w", s.arena, err)
	}

	s.growMu.Lock()
	ps, err := s.central.GrowDedicated(size)
	s.growMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.cache.Release(e)
		s.stats.growFailures++
		return nil, fmt.Errorf("shard %d: dedicated slab for %d bytes: %w", s.arena, size, err)
	}
	npages := ps.Pages()
	idx, _ := ps.Reserve(npages)
	s.set.Insert(ps)
	e.Init(s.arena, edata.SourceSlab, ps.ID(), ps.Region(idx, npages))
	s.stats.allocs++
	s.stats.dedicated++
	s.stats.activeBytes += e.Size
	return e, nil
}

// ============================================================================
// Resize and free
// ============================================================================

// Expand grows e in place. It fails with pai.ErrNoRoom when the pages after e
// are in use, or when the new size would break the shard's size policy for
// the slab e lives in.
func (s *Shard) Expand(e *edata.Extent, newSize uintptr) error {
	if err := s.checkOwned(e); err != nil {
		return err
	}
	newSize, ok := pagefmt.CheckedAlignPage(newSize)
	if !ok {
		return pai.ErrNoRoom
	}
	if newSize < e.Size {
		return fmt.Errorf("%w: expand %d to %d", pai.ErrBadSize, e.Size, newSize)
	}
	if newSize == e.Size {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ps, idx, err := s.locateLocked(e)
	if err != nil {
		return err
	}
	limit := s.cfg.SlabAllocMax
	if ps.Dedicated() && idx == 0 {
		// The region the slab was grown for.
		limit = s.cfg.SmallMax
	}
	if newSize > limit || newSize >= s.cfg.LargeMin ||
		!ps.Extend(idx, pagefmt.Pages(e.Size), pagefmt.Pages(newSize)) {
		s.stats.expandFailures++
		return pai.ErrNoRoom
	}
	s.set.Update(ps)
	s.stats.expands++
	s.stats.activeBytes += newSize - e.Size
	e.SetMem(ps.Region(idx, pagefmt.Pages(newSize)))
	return nil
}

// Shrink releases the pages of e beyond newSize.
func (s *Shard) Shrink(e *edata.Extent, newSize uintptr) error {
	if err := s.checkOwned(e); err != nil {
		return err
	}
	newSize, ok := pagefmt.CheckedAlignPage(newSize)
	if !ok || newSize == 0 || newSize > e.Size {
		return fmt.Errorf("%w: shrink %d to %d", pai.ErrBadSize, e.Size, newSize)
	}
	if newSize == e.Size {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ps, idx, err := s.locateLocked(e)
	if err != nil {
		return err
	}
	keep := pagefmt.Pages(newSize)
	ps.Release(idx+keep, pagefmt.Pages(e.Size)-keep)
	s.set.Update(ps)
	s.stats.shrinks++
	s.stats.activeBytes -= e.Size - newSize
	e.SetMem(ps.Region(idx, keep))
	return nil
}

// Free releases e. An emptied shared slab stays in the set for reuse; an
// emptied dedicated slab goes back to the central authority.
func (s *Shard) Free(e *edata.Extent) error {
	if err := s.checkOwned(e); err != nil {
		return err
	}

	s.mu.Lock()
	ps, idx, err := s.locateLocked(e)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	size := e.Size
	ps.Release(idx, pagefmt.Pages(size))
	s.cache.Release(e)
	s.stats.frees++
	s.stats.activeBytes -= size

	var reclaim *slab.Slab
	if ps.Dedicated() && ps.Empty() {
		s.set.Remove(ps)
		reclaim = ps
		s.stats.reclaims++
	} else {
		s.set.Update(ps)
	}
	s.mu.Unlock()

	if reclaim != nil {
		return s.central.Reclaim(reclaim)
	}
	return nil
}

func (s *Shard) checkOwned(e *edata.Extent) error {
	if e == nil || e.Source != edata.SourceSlab || e.Arena != s.arena {
		return fmt.Errorf("%w: %v", pai.ErrBadExtent, e)
	}
	if s.State() == StateDestroyed {
		return ErrDestroyed
	}
	return nil
}

// locateLocked finds the slab and first page of e.
func (s *Shard) locateLocked(e *edata.Extent) (*slab.Slab, int, error) {
	ps, ok := s.set.Lookup(e.Slab)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %v: unknown slab", pai.ErrBadExtent, e)
	}
	idx, ok := ps.PageOf(e.Addr)
	if !ok || idx+pagefmt.Pages(e.Size) > ps.Pages() {
		return nil, 0, fmt.Errorf("%w: %v outside %v", pai.ErrBadExtent, e, ps)
	}
	return ps, idx, nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Disable marks the shard as no longer preferred and flushes its descriptor
// cache. Requests already in flight complete normally, and later requests
// that still reach the shard are served with the cache bypassed. Calling it
// again, or concurrently, is a no-op.
func (s *Shard) Disable() {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateDisabling)) {
		return
	}
	s.mu.Lock()
	s.cache.Disable()
	s.mu.Unlock()
	s.state.CompareAndSwap(int32(StateDisabling), int32(StateDisabled))
	logger.Debug("shard: disabled", "arena", s.arena)
}

// Destroy hands every slab back to the central authority. The caller
// guarantees no concurrent use; outstanding regions become invalid.
func (s *Shard) Destroy() error {
	prev := State(s.state.Swap(int32(StateDestroyed)))
	if prev == StateDestroyed {
		return ErrDestroyed
	}

	s.mu.Lock()
	s.cache.Disable()
	slabs := s.set.Slabs()
	for _, ps := range slabs {
		if !ps.Empty() {
			logger.Warn("shard: destroying slab with live regions", "arena", s.arena,
				"slab", ps.ID(), "active_pages", ps.Active())
		}
		s.set.Remove(ps)
	}
	s.stats.activeBytes = 0
	s.mu.Unlock()

	var firstErr error
	for _, ps := range slabs {
		if err := s.central.Reclaim(ps); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	logger.Debug("shard: destroyed", "arena", s.arena, "slabs", len(slabs))
	return firstErr
}
