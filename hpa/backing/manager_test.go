package backing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hpakit/internal/pagefmt"
)

const mib = 1 << 20

func adopt(t *testing.T, m *Manager, want, need uintptr) []byte {
	t.Helper()
	mem, err := m.Reserve(want, need)
	require.NoError(t, err)
	m.Adopt(mem)
	return mem
}

func TestManager_TakeSplitsReservation(t *testing.T) {
	m := New(&heapMapper{}, 0)
	res := adopt(t, m, 8*mib, 2*mib)

	slab, ok := m.Take(2 * mib)
	require.True(t, ok)
	require.Len(t, slab, 2*mib)
	require.Equal(t, addrOf(res), addrOf(slab), "first take starts at the reservation base")

	s := m.Stats()
	require.Equal(t, uintptr(8*mib), s.Reserved)
	require.Equal(t, uintptr(2*mib), s.Carved)
	require.Equal(t, uintptr(6*mib), s.Free)
	require.Equal(t, 1, s.FreeRanges)
}

func TestManager_TakeBestFit(t *testing.T) {
	m := New(&heapMapper{}, 0)
	adopt(t, m, 8*mib, 8*mib)

	a, _ := m.Take(2 * mib)
	b, _ := m.Take(2 * mib)
	c, _ := m.Take(2 * mib)
	require.NotNil(t, c)
	// Free a (2 MiB hole) while 2 MiB remains at the tail; free b to make a 4 MiB hole.
	require.NoError(t, m.Release(a))
	require.NoError(t, m.Release(b))

	// Holes: [a,b) coalesced = 4 MiB, tail = 2 MiB. A 2 MiB take must use the tail.
	got, ok := m.Take(2 * mib)
	require.True(t, ok)
	require.Equal(t, addrOf(c)+2*mib, addrOf(got))
}

func TestManager_ReleaseCoalesces(t *testing.T) {
	m := New(&heapMapper{}, 0)
	adopt(t, m, 4*mib, 4*mib)

	var parts [][]byte
	for range 4 {
		p, ok := m.Take(mib)
		require.True(t, ok)
		parts = append(parts, p)
	}
	require.Equal(t, 0, m.Stats().FreeRanges)

	require.NoError(t, m.Release(parts[1]))
	require.NoError(t, m.Release(parts[3]))
	require.Equal(t, 2, m.Stats().FreeRanges)

	require.NoError(t, m.Release(parts[2]))
	require.Equal(t, 1, m.Stats().FreeRanges, "middle release joins both neighbours")

	require.NoError(t, m.Release(parts[0]))
	s := m.Stats()
	require.Equal(t, 1, s.FreeRanges)
	require.Equal(t, uintptr(4*mib), s.Free)
	require.Zero(t, s.Carved)
}

func TestManager_NoCoalesceAcrossReservations(t *testing.T) {
	m := New(&heapMapper{}, 0)
	adopt(t, m, 2*mib, 2*mib)
	adopt(t, m, 2*mib, 2*mib)

	a, _ := m.Take(2 * mib)
	b, _ := m.Take(2 * mib)
	require.NoError(t, m.Release(a))
	require.NoError(t, m.Release(b))
	require.Equal(t, 2, m.Stats().FreeRanges)

	_, ok := m.Take(4 * mib)
	require.False(t, ok, "a take must never span two reservations")
}

func TestManager_LimitClampsAndExhausts(t *testing.T) {
	m := New(&heapMapper{}, 6*mib)

	mem, err := m.Reserve(4*mib, 2*mib)
	require.NoError(t, err)
	m.Adopt(mem)

	mem, err = m.Reserve(8*mib, 2*mib)
	require.NoError(t, err)
	require.Len(t, mem, 2*mib, "want is clamped to the remaining headroom")
	m.Adopt(mem)

	_, err = m.Reserve(2*mib, 2*mib)
	require.ErrorIs(t, err, ErrExhausted)
	require.Zero(t, m.Headroom())
}

func TestManager_MapperFailureIsExhaustion(t *testing.T) {
	hm := &heapMapper{failNext: true}
	m := New(hm, 0)
	_, err := m.Reserve(2*mib, 2*mib)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, errMapRefused)
	require.Zero(t, m.Stats().Reservations)
}

func TestManager_ReleaseForeignRange(t *testing.T) {
	m := New(&heapMapper{}, 0)
	adopt(t, m, 2*mib, 2*mib)
	err := m.Release(make([]byte, pagefmt.PageSize))
	require.ErrorIs(t, err, ErrBadRange)
}

func TestManager_DoubleReleasePanics(t *testing.T) {
	m := New(&heapMapper{}, 0)
	adopt(t, m, 2*mib, 2*mib)
	a, _ := m.Take(mib)
	require.NoError(t, m.Release(a))
	require.Panics(t, func() { _ = m.Release(a) })
}

func TestManager_CloseRequiresIdle(t *testing.T) {
	hm := &heapMapper{}
	m := New(hm, 0)
	adopt(t, m, 2*mib, 2*mib)
	a, _ := m.Take(mib)

	require.ErrorIs(t, m.Close(), ErrBusy)
	require.NoError(t, m.Release(a))
	require.NoError(t, m.Close())
	require.Equal(t, 1, hm.unmaps)
	require.Zero(t, m.Stats().Reserved)
}

func TestManager_OSMapper(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mmap test in short mode")
	}
	m := New(nil, 0)
	adopt(t, m, 2*mib, 2*mib)
	slab, ok := m.Take(mib)
	require.True(t, ok)
	slab[0], slab[len(slab)-1] = 1, 2

	require.NoError(t, m.Purge(slab))
	require.NoError(t, m.Release(slab))
	require.NoError(t, m.Close())
}
