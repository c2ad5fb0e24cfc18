//go:build linux

package mmap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPurgeZeroesPages(t *testing.T) {
	pg := os.Getpagesize()
	data, err := Map(2 * pg)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, Unmap(data))
	}()

	data[pg] = 0x42
	require.NoError(t, Purge(data[pg:]))
	require.Equal(t, byte(0), data[pg], "private anonymous page should read back as zero after purge")
}

func TestHugifyAcceptsMapping(t *testing.T) {
	data, err := Map(4 << 20)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, Unmap(data))
	}()
	// THP may be disabled system-wide; the advice call itself must still be accepted
	// or rejected with EINVAL, never crash.
	_ = Hugify(data)
}
