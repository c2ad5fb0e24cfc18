package slab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/internal/pagefmt"
)

func newSlab(t testing.TB, npages int) *Slab {
	t.Helper()
	var d edata.Extent
	d.Init(0, edata.SourcePageslab, 1, make([]byte, pagefmt.Bytes(npages)))
	return New(&d, false)
}

func TestSlab_ReserveFirstFit(t *testing.T) {
	s := newSlab(t, 16)
	require.Equal(t, 16, s.LongestFree())

	a, ok := s.Reserve(4)
	require.True(t, ok)
	require.Equal(t, 0, a)
	b, ok := s.Reserve(4)
	require.True(t, ok)
	require.Equal(t, 4, b)

	require.Equal(t, 8, s.Active())
	require.Equal(t, 8, s.LongestFree())

	s.Release(a, 4)
	require.Equal(t, 8, s.LongestFree(), "hole of 4 does not beat the 8-page tail")

	c, ok := s.Reserve(2)
	require.True(t, ok)
	require.Equal(t, 0, c, "first fit reuses the lowest hole")
}

func TestSlab_ReserveTooLarge(t *testing.T) {
	s := newSlab(t, 8)
	_, ok := s.Reserve(9)
	require.False(t, ok)
	_, ok = s.Reserve(0)
	require.False(t, ok)
	require.Zero(t, s.Active())
}

func TestSlab_FullAndEmpty(t *testing.T) {
	s := newSlab(t, 8)
	idx, ok := s.Reserve(8)
	require.True(t, ok)
	require.Zero(t, s.LongestFree())
	require.False(t, s.Empty())

	s.Release(idx, 8)
	require.True(t, s.Empty())
	require.Equal(t, 8, s.LongestFree())
}

func TestSlab_ExtendInPlace(t *testing.T) {
	s := newSlab(t, 16)
	a, _ := s.Reserve(2)
	b, _ := s.Reserve(2)

	require.False(t, s.Extend(a, 2, 3), "page after a is taken by b")
	require.Equal(t, 4, s.Active(), "failed extend has no side effects")

	require.True(t, s.Extend(b, 2, 6))
	require.Equal(t, 8, s.Active())
	require.Equal(t, 8, s.LongestFree())

	require.False(t, s.Extend(b, 6, 15), "cannot extend past the slab end")
	require.True(t, s.Extend(b, 6, 6))
}

func TestSlab_ReleaseFreePagePanics(t *testing.T) {
	s := newSlab(t, 8)
	idx, _ := s.Reserve(2)
	s.Release(idx, 2)
	require.Panics(t, func() { s.Release(idx, 2) })
	require.Panics(t, func() { s.Release(6, 4) })
}

func TestSlab_RegionAndPageOf(t *testing.T) {
	s := newSlab(t, 8)
	idx, _ := s.Reserve(3)
	r := s.Region(idx, 3)
	require.Len(t, r, 3*pagefmt.PageSize)
	require.Equal(t, 3*pagefmt.PageSize, cap(r))

	p, ok := s.PageOf(s.Addr() + 2*pagefmt.PageSize + 17)
	require.True(t, ok)
	require.Equal(t, 2, p)

	_, ok = s.PageOf(s.Addr() + s.Size())
	require.False(t, ok)
}

func TestSlab_LongestAcrossWords(t *testing.T) {
	// 512 pages = 8 bitmap words; exercise the word-skipping paths.
	s := newSlab(t, pagefmt.PagesPerHugePage)

	a, _ := s.Reserve(60)
	b, _ := s.Reserve(100)
	c, _ := s.Reserve(200)
	require.Equal(t, 0, a)
	require.Equal(t, 60, b)
	require.Equal(t, 160, c)
	require.Equal(t, 512-360, s.LongestFree())

	s.Release(b, 100)
	require.Equal(t, 152, s.LongestFree())

	idx, ok := s.Reserve(100)
	require.True(t, ok)
	require.Equal(t, 60, idx, "the hole left by b is the first fit")

	s.Release(c, 200)
	require.Equal(t, 512-160, s.LongestFree())
	s.Release(a, 60)
	s.Release(idx, 100)
	require.Equal(t, 512, s.LongestFree())
	require.True(t, s.Empty())
}

func TestSlab_NotPageMultiplePanics(t *testing.T) {
	var d edata.Extent
	d.Init(0, edata.SourcePageslab, 1, make([]byte, pagefmt.PageSize+1))
	require.Panics(t, func() { New(&d, false) })
}
