package edata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtent_InitAndOverlap(t *testing.T) {
	buf := make([]byte, 8192)
	var a, b Extent
	a.Init(1, SourceSlab, 7, buf[:4096])
	b.Init(1, SourceSlab, 7, buf[4096:])

	require.Equal(t, uintptr(4096), a.Size)
	require.Equal(t, a.End(), b.Addr)
	require.False(t, a.Overlaps(&b))
	require.True(t, a.Contains(a.Addr, 4096))
	require.False(t, a.Contains(a.Addr, 4097))

	var c Extent
	c.Init(1, SourceSlab, 7, buf[2048:6144])
	require.True(t, a.Overlaps(&c))
	require.True(t, b.Overlaps(&c))

	require.Len(t, a.Bytes(), 4096)
	require.Equal(t, 4096, cap(a.Bytes()), "Bytes must not expose memory past the extent")
	require.Contains(t, a.String(), "slab=7")
}
