//go:build unix

package mmap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapReadWriteUnix(t *testing.T) {
	size := 4 * os.Getpagesize()
	data, err := Map(size)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, Unmap(data))
	}()

	require.Len(t, data, size)
	for i := range data {
		if data[i] != 0 {
			t.Fatalf("byte %d not zero-filled: 0x%x", i, data[i])
		}
	}
	data[0] = 0xde
	data[size-1] = 0xad
	require.Equal(t, byte(0xde), data[0])
	require.Equal(t, byte(0xad), data[size-1])
}

func TestMapRejectsBadSize(t *testing.T) {
	_, err := Map(0)
	require.Error(t, err)
}

func TestUnmapEmpty(t *testing.T) {
	require.NoError(t, Unmap(nil))
	require.NoError(t, Purge(nil))
	require.NoError(t, Hugify(nil))
}
