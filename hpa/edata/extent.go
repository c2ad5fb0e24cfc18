package edata

import (
	"fmt"
	"unsafe"
)

// Source tags which backend produced an extent.
type Source uint8

const (
	SourceNone     Source = iota
	SourceSlab            // region carved from a shard's page slab
	SourcePageslab        // a whole page slab handed out by the central authority
	SourceDirect          // region mapped by the coarse direct allocator
)

func (s Source) String() string {
	switch s {
	case SourceSlab:
		return "slab"
	case SourcePageslab:
		return "pageslab"
	case SourceDirect:
		return "direct"
	default:
		return "none"
	}
}

// Extent describes a contiguous, page-aligned range of memory.
type Extent struct {
	Addr   uintptr // start address
	Size   uintptr // size in bytes, a multiple of the page size
	Arena  uint32  // arena the extent was allocated for
	Slab   uint64  // owning slab handle (SourceSlab) or own handle (SourcePageslab)
	Source Source

	mem     []byte // Size bytes starting at Addr
	backing []byte // the full underlying mapping, when the owner needs it back

	next   *Extent // free-list link while pooled
	pooled bool
}

// Init fills e to describe mem.
func (e *Extent) Init(arena uint32, src Source, slab uint64, mem []byte) {
	e.Arena = arena
	e.Source = src
	e.Slab = slab
	e.SetMem(mem)
}

// SetMem repoints e at mem, updating Addr and Size.
func (e *Extent) SetMem(mem []byte) {
	e.mem = mem
	e.Size = uintptr(len(mem))
	e.Addr = 0
	if len(mem) > 0 {
		e.Addr = uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	}
}

// Bytes returns the memory described by e. The slice is only valid while e is
// allocated.
func (e *Extent) Bytes() []byte {
	return e.mem[:len(e.mem):len(e.mem)]
}

// SetBacking records the full mapping e was cut from.
func (e *Extent) SetBacking(b []byte) { e.backing = b }

// Backing returns the mapping recorded by SetBacking.
func (e *Extent) Backing() []byte { return e.backing }

// End returns the first address past e.
func (e *Extent) End() uintptr { return e.Addr + e.Size }

// Contains reports whether [addr, addr+size) lies inside e.
func (e *Extent) Contains(addr, size uintptr) bool {
	return addr >= e.Addr && addr+size <= e.End()
}

// Overlaps reports whether e and o share at least one byte.
func (e *Extent) Overlaps(o *Extent) bool {
	return e.Addr < o.End() && o.Addr < e.End()
}

func (e *Extent) String() string {
	return fmt.Sprintf("extent{%s arena=%d slab=%d addr=0x%x size=%d}",
		e.Source, e.Arena, e.Slab, e.Addr, e.Size)
}

func (e *Extent) reset() {
	*e = Extent{}
}
