package central

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hpakit/internal/lockrank"
)

func TestPrefork_BlocksGrowthUntilParentRelease(t *testing.T) {
	c, _, _ := newCentral(t, Config{})
	require.NoError(t, lockrank.CheckOrder(c.Locks()))

	c.Prefork()
	done := make(chan error, 1)
	go func() {
		_, err := c.Grow(2 * mib)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Grow completed while prefork locks were held")
	case <-time.After(20 * time.Millisecond):
	}

	c.PostforkParent()
	require.NoError(t, <-done)
}

func TestPostforkChild_ReinitializesLocks(t *testing.T) {
	c, _, _ := newCentral(t, Config{})
	c.Prefork()
	c.PostforkChild()

	_, err := c.Grow(2 * mib)
	require.NoError(t, err)
	require.Equal(t, 1, c.Stats().LiveSlabs)
}
