// Package arena routes page requests between an arena's allocation shard and
// its coarse backend, and owns the process-wide registry that ties every
// arena to the shared central authority and descriptor pool.
package arena

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/hpakit/hpa/direct"
	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/pai"
	"github.com/joshuapare/hpakit/hpa/shard"
	"github.com/joshuapare/hpakit/internal/logger"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// Arena picks a backend per request.
//
//	size >= LargeMin, or shard disabled   coarse backend
//	size <= SmallMax                      shard, coarse backend on failure
//	otherwise                             coarse backend
//
// Resize and free calls go to whichever backend produced the extent.
type Arena struct {
	id     uint32
	shard  *shard.Shard
	direct *direct.Allocator

	shardAllocs  atomic.Uint64
	directAllocs atomic.Uint64
	fallbacks    atomic.Uint64
}

var _ pai.PageAllocator = (*Arena)(nil)

// Stats is a snapshot of one arena.
type Stats struct {
	ID           uint32
	ShardAllocs  uint64 // requests served by the shard
	DirectAllocs uint64 // requests served by the coarse backend
	Fallbacks    uint64 // shard failures retried on the coarse backend
	Shard        shard.Stats
	Direct       direct.Stats
}

// New builds an arena over sh and d. Both must allocate for id.
func New(id uint32, sh *shard.Shard, d *direct.Allocator) *Arena {
	return &Arena{id: id, shard: sh, direct: d}
}

// ID returns the arena index.
func (a *Arena) ID() uint32 { return a.id }

// Shard returns the arena's allocation shard.
func (a *Arena) Shard() *shard.Shard { return a.shard }

func (a *Arena) Alloc(size uintptr) (*edata.Extent, error) {
	if size == 0 {
		return nil, pai.ErrBadSize
	}
	rounded, ok := pagefmt.CheckedAlignPage(size)
	if !ok {
		return nil, fmt.Errorf("arena %d: %w: %d bytes", a.id, pai.ErrBadSize, size)
	}
	if rounded < a.shard.LargeMin() && rounded <= a.shard.SmallMax() && !a.shard.Disabled() {
		e, err := a.shard.Alloc(rounded)
		if err == nil {
			a.shardAllocs.Add(1)
			return e, nil
		}
		a.fallbacks.Add(1)
		logger.Debug("arena: shard failed, using coarse backend", "arena", a.id, "size", rounded, "err", err)
	}
	e, err := a.direct.Alloc(rounded)
	if err != nil {
		return nil, fmt.Errorf("arena %d: %w", a.id, err)
	}
	a.directAllocs.Add(1)
	return e, nil
}

func (a *Arena) Expand(e *edata.Extent, newSize uintptr) error {
	b, err := a.backendFor(e)
	if err != nil {
		return err
	}
	return b.Expand(e, newSize)
}

func (a *Arena) Shrink(e *edata.Extent, newSize uintptr) error {
	b, err := a.backendFor(e)
	if err != nil {
		return err
	}
	return b.Shrink(e, newSize)
}

func (a *Arena) Free(e *edata.Extent) error {
	b, err := a.backendFor(e)
	if err != nil {
		return err
	}
	return b.Free(e)
}

func (a *Arena) backendFor(e *edata.Extent) (pai.PageAllocator, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil extent", pai.ErrBadExtent)
	}
	switch e.Source {
	case edata.SourceSlab:
		return a.shard, nil
	case edata.SourceDirect:
		return a.direct, nil
	default:
		return nil, fmt.Errorf("%w: %v", pai.ErrBadExtent, e)
	}
}

// Disable stops routing to the shard. Racing requests may still reach it.
func (a *Arena) Disable() { a.shard.Disable() }

// Destroy disables and destroys the shard. Coarse regions are untouched.
func (a *Arena) Destroy() error {
	a.shard.Disable()
	err := a.shard.Destroy()
	if errors.Is(err, shard.ErrDestroyed) {
		return nil
	}
	return err
}

// Stats returns a snapshot of the arena.
func (a *Arena) Stats() Stats {
	return Stats{
		ID:           a.id,
		ShardAllocs:  a.shardAllocs.Load(),
		DirectAllocs: a.directAllocs.Load(),
		Fallbacks:    a.fallbacks.Load(),
		Shard:        a.shard.Stats(),
		Direct:       a.direct.Stats(),
	}
}
