package direct

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/pai"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

const kib = 1 << 10

var errMapRefused = errors.New("map refused")

type heapMapper struct {
	fail   bool
	maps   int
	unmaps int
	purged int
}

func (m *heapMapper) Map(size int) ([]byte, error) {
	if m.fail {
		return nil, errMapRefused
	}
	m.maps++
	return make([]byte, size), nil
}

func (m *heapMapper) Unmap(_ []byte) error {
	m.unmaps++
	return nil
}

func (m *heapMapper) Purge(mem []byte) error {
	m.purged += len(mem)
	clear(mem)
	return nil
}

func TestAllocFree(t *testing.T) {
	pool := edata.NewPool(0)
	m := &heapMapper{}
	a := New(3, pool, m)

	e, err := a.Alloc(10 * kib)
	require.NoError(t, err)
	require.Equal(t, uintptr(12*kib), e.Size)
	require.Equal(t, edata.SourceDirect, e.Source)
	require.Equal(t, uint32(3), e.Arena)
	require.Len(t, e.Backing(), 12*kib)
	require.Equal(t, 1, pool.Stats().Outstanding)

	require.NoError(t, a.Free(e))
	require.Equal(t, 1, m.unmaps)
	require.Zero(t, pool.Stats().Outstanding)

	st := a.Stats()
	require.Equal(t, uint64(1), st.Allocs)
	require.Equal(t, uint64(1), st.Frees)
	require.Zero(t, st.Mapped)
	require.Zero(t, st.Active)
}

func TestAlloc_Failures(t *testing.T) {
	pool := edata.NewPool(0)
	m := &heapMapper{fail: true}
	a := New(0, pool, m)

	_, err := a.Alloc(0)
	require.ErrorIs(t, err, pai.ErrBadSize)

	_, err = a.Alloc(^uintptr(0) - 10)
	require.ErrorIs(t, err, pai.ErrBadSize, "rounding up would wrap past zero")
	require.Zero(t, pool.Stats().Outstanding)

	_, err = a.Alloc(4 * kib)
	require.ErrorIs(t, err, errMapRefused)
	require.Zero(t, pool.Stats().Outstanding, "descriptor returned on map failure")

	_, err = New(0, edata.NewPool(1), &heapMapper{}).Alloc(4 * kib)
	require.NoError(t, err)
}

func TestShrinkThenExpand(t *testing.T) {
	m := &heapMapper{}
	a := New(0, edata.NewPool(0), m)

	e, err := a.Alloc(64 * kib)
	require.NoError(t, err)
	addr := e.Addr
	e.Bytes()[63*kib] = 1

	require.NoError(t, a.Shrink(e, 16*kib))
	require.Equal(t, uintptr(16*kib), e.Size)
	require.Equal(t, 48*kib, m.purged)
	require.Equal(t, uintptr(16*kib), a.Stats().Active)
	require.Equal(t, uintptr(64*kib), a.Stats().Mapped)

	require.NoError(t, a.Expand(e, 64*kib))
	require.Equal(t, addr, e.Addr)
	require.Zero(t, e.Bytes()[63*kib], "purged tail reads back zeroed")

	require.ErrorIs(t, a.Expand(e, 64*kib+pagefmt.PageSize), pai.ErrNoRoom)
	require.ErrorIs(t, a.Shrink(e, 0), pai.ErrBadSize)
	require.ErrorIs(t, a.Expand(e, 4*kib), pai.ErrBadSize)
	require.ErrorIs(t, a.Expand(e, ^uintptr(0)), pai.ErrNoRoom)

	require.NoError(t, a.Free(e))
	require.Zero(t, a.Stats().Mapped)
}

func TestForeignExtent(t *testing.T) {
	a := New(0, edata.NewPool(0), &heapMapper{})

	require.ErrorIs(t, a.Free(nil), pai.ErrBadExtent)
	require.ErrorIs(t, a.Free(&edata.Extent{Source: edata.SourceSlab}), pai.ErrBadExtent)

	other := New(1, edata.NewPool(0), &heapMapper{})
	e, err := other.Alloc(4 * kib)
	require.NoError(t, err)
	require.ErrorIs(t, a.Free(e), pai.ErrBadExtent)
}
