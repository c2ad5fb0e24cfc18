// Package backing implements the backing-store manager: it reserves large,
// huge-page aligned mappings from the OS and carves them into page slabs.
//
// Ranges returned to the manager are kept in a reuse pool and coalesced with
// their free neighbours, but never across two reservations, even when the OS
// happened to place the mappings back to back.
//
// Manager has no lock of its own. The central authority serializes it:
// Reserve runs under the growth lock alone (it may be slow), every other
// method that mutates state runs under the bookkeeping lock, and Adopt, the
// only method that changes the reservation list, requires both.
package backing

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// reservation is one OS mapping.
type reservation struct {
	mem   []byte
	start uintptr
	end   uintptr
}

// freeRange is a run of reusable address space inside one reservation.
type freeRange struct {
	start uintptr
	end   uintptr
	res   int // index into Manager.reservations
}

func (f *freeRange) size() uintptr { return f.end - f.start }

// Manager owns the mapped address space.
type Manager struct {
	mapper Mapper
	limit  uintptr // cap on reserved bytes, 0 = unlimited

	reserved     uintptr
	reservations []reservation // sorted by start

	// O(1) coalescing indexes
	byStart map[uintptr]*freeRange
	byEnd   map[uintptr]*freeRange

	freeBytes   uintptr
	carvedBytes uintptr
}

// Stats is a snapshot of manager accounting.
type Stats struct {
	Reservations int
	Reserved     uintptr // bytes mapped from the OS
	Carved       uintptr // bytes handed out and not yet released
	Free         uintptr // bytes in the reuse pool
	FreeRanges   int
}

// New creates a manager. A nil mapper selects OSMapper.
func New(mapper Mapper, limit uintptr) *Manager {
	if mapper == nil {
		mapper = OSMapper{}
	}
	return &Manager{
		mapper:  mapper,
		limit:   limit,
		byStart: make(map[uintptr]*freeRange),
		byEnd:   make(map[uintptr]*freeRange),
	}
}

// Headroom returns how many more bytes may be reserved, or ^uintptr(0) when
// unlimited.
func (m *Manager) Headroom() uintptr {
	if m.limit == 0 {
		return ^uintptr(0)
	}
	if m.reserved >= m.limit {
		return 0
	}
	return m.limit - m.reserved
}

// Reserve maps a new region of want bytes, clamped to the remaining headroom
// as long as at least need bytes fit. The region is not usable until Adopt.
func (m *Manager) Reserve(want, need uintptr) ([]byte, error) {
	need = pagefmt.AlignHugePage(need)
	want = max(pagefmt.AlignHugePage(want), need)

	room := m.Headroom() &^ pagefmt.HugePageMask
	if room < need {
		return nil, fmt.Errorf("%w: need %d bytes, %d reservable", ErrExhausted, need, room)
	}
	size := min(want, room)

	mem, err := m.mapper.Map(int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExhausted, err)
	}
	return mem, nil
}

// Adopt registers a region returned by Reserve and adds all of it to the
// reuse pool.
func (m *Manager) Adopt(mem []byte) {
	start := addrOf(mem)
	r := reservation{mem: mem, start: start, end: start + uintptr(len(mem))}

	i, _ := slices.BinarySearchFunc(m.reservations, start, func(r reservation, a uintptr) int {
		switch {
		case r.start < a:
			return -1
		case r.start > a:
			return 1
		}
		return 0
	})
	m.reservations = slices.Insert(m.reservations, i, r)
	// Indexes after i shifted by one.
	for _, f := range m.byStart {
		if f.res >= i {
			f.res++
		}
	}
	m.reserved += r.end - r.start
	m.insertFree(r.start, r.end, i)
}

// Take carves size bytes out of the reuse pool, best fit with ties broken by
// lowest address. It returns false when no free range is large enough.
func (m *Manager) Take(size uintptr) ([]byte, bool) {
	var best *freeRange
	for _, f := range m.byStart {
		if f.size() < size {
			continue
		}
		if best == nil || f.size() < best.size() ||
			(f.size() == best.size() && f.start < best.start) {
			best = f
		}
	}
	if best == nil {
		return nil, false
	}

	m.removeFree(best)
	start, end, res := best.start, best.end, best.res
	if rem := end - (start + size); rem > 0 {
		m.insertFree(start+size, end, res)
	}
	m.carvedBytes += size
	return m.slice(res, start, start+size), true
}

// Release returns a carved range to the reuse pool, coalescing it with free
// neighbours inside the same reservation.
func (m *Manager) Release(mem []byte) error {
	start := addrOf(mem)
	end := start + uintptr(len(mem))
	res, ok := m.findReservation(start)
	if !ok || end > m.reservations[res].end {
		return fmt.Errorf("%w: [0x%x, 0x%x)", ErrBadRange, start, end)
	}
	if f, overlap := m.overlapsFree(start, end, res); overlap {
		panic(fmt.Sprintf("backing: release of [0x%x, 0x%x) overlaps free range [0x%x, 0x%x)",
			start, end, f.start, f.end))
	}
	m.carvedBytes -= end - start

	if prev, ok := m.byEnd[start]; ok && prev.res == res {
		m.removeFree(prev)
		start = prev.start
	}
	if next, ok := m.byStart[end]; ok && next.res == res {
		m.removeFree(next)
		end = next.end
	}
	m.insertFree(start, end, res)
	return nil
}

// Purge drops the physical pages behind mem. It needs no lock.
func (m *Manager) Purge(mem []byte) error {
	return m.mapper.Purge(mem)
}

// Close unmaps every reservation. It fails with ErrBusy while ranges are
// still carved.
func (m *Manager) Close() error {
	if m.carvedBytes != 0 {
		return fmt.Errorf("%w: %d bytes", ErrBusy, m.carvedBytes)
	}
	var firstErr error
	for _, r := range m.reservations {
		if err := m.mapper.Unmap(r.mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.reservations = nil
	clear(m.byStart)
	clear(m.byEnd)
	m.reserved, m.freeBytes = 0, 0
	return firstErr
}

// Stats returns a snapshot of the accounting.
func (m *Manager) Stats() Stats {
	return Stats{
		Reservations: len(m.reservations),
		Reserved:     m.reserved,
		Carved:       m.carvedBytes,
		Free:         m.freeBytes,
		FreeRanges:   len(m.byStart),
	}
}

// ============================================================================
// Internal helpers
// ============================================================================

func (m *Manager) insertFree(start, end uintptr, res int) {
	f := &freeRange{start: start, end: end, res: res}
	m.byStart[start] = f
	m.byEnd[end] = f
	m.freeBytes += f.size()
}

func (m *Manager) removeFree(f *freeRange) {
	delete(m.byStart, f.start)
	delete(m.byEnd, f.end)
	m.freeBytes -= f.size()
}

func (m *Manager) overlapsFree(start, end uintptr, res int) (*freeRange, bool) {
	for _, f := range m.byStart {
		if f.res == res && f.start < end && start < f.end {
			return f, true
		}
	}
	return nil, false
}

// findReservation binary-searches the reservation containing addr.
func (m *Manager) findReservation(addr uintptr) (int, bool) {
	lo, hi := 0, len(m.reservations)-1
	for lo <= hi {
		mid := (lo + hi) >> 1
		r := m.reservations[mid]
		if addr < r.start {
			hi = mid - 1
		} else if addr >= r.end {
			lo = mid + 1
		} else {
			return mid, true
		}
	}
	return 0, false
}

func (m *Manager) slice(res int, start, end uintptr) []byte {
	r := m.reservations[res]
	lo, hi := start-r.start, end-r.start
	return r.mem[lo:hi:hi]
}

func addrOf(mem []byte) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
}
