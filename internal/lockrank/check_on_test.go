//go:build lockrankcheck

package lockrank

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLock_PanicsOnRankInversion(t *testing.T) {
	ms := ranked(RankShard, RankCentral)
	ms[1].Lock()
	defer ms[1].Unlock()

	require.PanicsWithValue(t, "lockrank: acquiring shard while holding central", func() {
		ms[0].Lock()
	})
}

func TestLock_AscendingAndEqualRanksAllowed(t *testing.T) {
	ms := ranked(RankShardGrow, RankShard, RankShard, RankCentral)
	for _, m := range ms {
		m.Lock()
	}
	UnlockAll(ms)

	// Once released, a lower rank is fine again.
	ms[3].Lock()
	ms[3].Unlock()
	ms[0].Lock()
	ms[0].Unlock()
}

func TestLock_UnrankedIgnored(t *testing.T) {
	ms := ranked(RankCentral, RankUnranked)
	ms[0].Lock()
	ms[1].Lock()
	ms[1].Unlock()
	ms[0].Unlock()
}

func TestLock_UnlockFromAnotherGoroutine(t *testing.T) {
	ms := ranked(RankShard, RankCentral)
	ms[1].Lock()
	done := make(chan struct{})
	go func() {
		ms[1].Unlock()
		close(done)
	}()
	<-done

	require.NotPanics(t, func() {
		ms[0].Lock()
		ms[0].Unlock()
	})
}

func TestReinit_ForgetsHeldLocks(t *testing.T) {
	ms := ranked(RankShard, RankCentral)
	ms[1].Lock()
	ms[1].Reinit()

	require.NotPanics(t, func() {
		ms[0].Lock()
		ms[0].Unlock()
	})
}
