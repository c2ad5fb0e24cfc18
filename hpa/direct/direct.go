// Package direct is the coarse page allocator: every region is its own OS
// mapping. The arena layer uses it for requests too large for a shard and as
// the fallback when a shard cannot serve.
package direct

import (
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/hpakit/hpa/backing"
	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/pai"
	"github.com/joshuapare/hpakit/internal/logger"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// Allocator maps one region per request.
type Allocator struct {
	arena  uint32
	pool   *edata.Pool
	mapper backing.Mapper

	allocs  atomic.Uint64
	frees   atomic.Uint64
	expands atomic.Uint64
	shrinks atomic.Uint64
	mapped  atomic.Int64 // bytes currently mapped
	active  atomic.Int64 // bytes currently in live regions
}

var _ pai.PageAllocator = (*Allocator)(nil)

// Stats is a snapshot of the allocator's counters.
type Stats struct {
	Allocs  uint64
	Frees   uint64
	Expands uint64
	Shrinks uint64
	Mapped  uintptr
	Active  uintptr
}

// New creates an allocator. A nil mapper selects backing.OSMapper.
func New(arena uint32, pool *edata.Pool, mapper backing.Mapper) *Allocator {
	if mapper == nil {
		mapper = backing.OSMapper{}
	}
	return &Allocator{arena: arena, pool: pool, mapper: mapper}
}

func (a *Allocator) Alloc(size uintptr) (*edata.Extent, error) {
	if size == 0 {
		return nil, pai.ErrBadSize
	}
	aligned, ok := pagefmt.CheckedAlignPage(size)
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes overflows page rounding", pai.ErrBadSize, size)
	}
	size = aligned

	e, err := a.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("direct: region descriptor: %w", err)
	}
	mem, err := a.mapper.Map(int(size))
	if err != nil {
		a.pool.Release(e)
		return nil, fmt.Errorf("direct: map %d bytes: %w", size, err)
	}
	e.Init(a.arena, edata.SourceDirect, 0, mem)
	e.SetBacking(mem)

	a.allocs.Add(1)
	a.mapped.Add(int64(size))
	a.active.Add(int64(size))
	return e, nil
}

// Expand grows e in place, which is only possible into pages an earlier
// Shrink gave up.
func (a *Allocator) Expand(e *edata.Extent, newSize uintptr) error {
	if err := a.check(e); err != nil {
		return err
	}
	newSize, ok := pagefmt.CheckedAlignPage(newSize)
	if !ok {
		return pai.ErrNoRoom
	}
	if newSize < e.Size {
		return fmt.Errorf("%w: expand %d to %d", pai.ErrBadSize, e.Size, newSize)
	}
	b := e.Backing()
	if newSize > uintptr(len(b)) {
		return pai.ErrNoRoom
	}
	a.expands.Add(1)
	a.active.Add(int64(newSize - e.Size))
	e.SetMem(b[:newSize:newSize])
	return nil
}

// Shrink drops the pages of e beyond newSize. They stay mapped until Free.
func (a *Allocator) Shrink(e *edata.Extent, newSize uintptr) error {
	if err := a.check(e); err != nil {
		return err
	}
	newSize, ok := pagefmt.CheckedAlignPage(newSize)
	if !ok || newSize == 0 || newSize > e.Size {
		return fmt.Errorf("%w: shrink %d to %d", pai.ErrBadSize, e.Size, newSize)
	}
	if newSize == e.Size {
		return nil
	}
	b := e.Backing()
	if err := a.mapper.Purge(b[newSize:e.Size]); err != nil {
		logger.Debug("direct: purge failed", "arena", a.arena, "size", e.Size-newSize, "err", err)
	}
	a.shrinks.Add(1)
	a.active.Add(-int64(e.Size - newSize))
	e.SetMem(b[:newSize:newSize])
	return nil
}

func (a *Allocator) Free(e *edata.Extent) error {
	if err := a.check(e); err != nil {
		return err
	}
	b := e.Backing()
	size := e.Size
	if err := a.mapper.Unmap(b); err != nil {
		return fmt.Errorf("direct: unmap %v: %w", e, err)
	}
	a.pool.Release(e)
	a.frees.Add(1)
	a.mapped.Add(-int64(len(b)))
	a.active.Add(-int64(size))
	return nil
}

// Stats returns a snapshot of the counters.
func (a *Allocator) Stats() Stats {
	return Stats{
		Allocs:  a.allocs.Load(),
		Frees:   a.frees.Load(),
		Expands: a.expands.Load(),
		Shrinks: a.shrinks.Load(),
		Mapped:  uintptr(a.mapped.Load()),
		Active:  uintptr(a.active.Load()),
	}
}

func (a *Allocator) check(e *edata.Extent) error {
	if e == nil || e.Source != edata.SourceDirect || e.Arena != a.arena || len(e.Backing()) == 0 {
		return fmt.Errorf("%w: %v", pai.ErrBadExtent, e)
	}
	return nil
}
