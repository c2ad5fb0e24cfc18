package shard

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hpakit/hpa/central"
	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/growth"
)

const (
	kib = 1 << 10
	mib = 1 << 20
)

var errMapRefused = errors.New("map refused")

// heapMapper backs reservations with Go heap memory and can be told to fail
// or to stall inside Map.
type heapMapper struct {
	delay time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
	maps        atomic.Int32

	mu   sync.Mutex
	fail bool
}

func (m *heapMapper) Map(size int) ([]byte, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxInflight.Load()
		if n <= cur || m.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	fail := m.fail
	m.mu.Unlock()
	if fail {
		return nil, errMapRefused
	}
	m.maps.Add(1)
	return make([]byte, size), nil
}

func (m *heapMapper) Unmap(_ []byte) error { return nil }

func (m *heapMapper) Purge(mem []byte) error {
	clear(mem)
	return nil
}

func (m *heapMapper) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

type fixture struct {
	central *central.Central
	pool    *edata.Pool
	mapper  *heapMapper
	arenas  uint32
}

func newFixture(t testing.TB, mapper *heapMapper) *fixture {
	t.Helper()
	return newFixtureWithPool(t, mapper, edata.NewPool(0))
}

func newFixtureWithPool(t testing.TB, mapper *heapMapper, pool *edata.Pool) *fixture {
	t.Helper()
	if mapper == nil {
		mapper = &heapMapper{}
	}
	c, err := central.New(0, pool, &central.Config{
		Growth: growth.Config{Min: 2 * mib, Max: 16 * mib},
		Mapper: mapper,
	})
	require.NoError(t, err)
	return &fixture{central: c, pool: pool, mapper: mapper}
}

func (f *fixture) shard(t testing.TB, cfg *Config) *Shard {
	t.Helper()
	s, err := New(f.central, f.pool, f.arenas, cfg)
	f.arenas++
	require.NoError(t, err)
	return s
}

// newShard returns a shard with DefaultConfig on a fresh central authority.
func newShard(t testing.TB) (*Shard, *fixture) {
	t.Helper()
	f := newFixture(t, nil)
	return f.shard(t, nil), f
}

// requireDisjoint fails if any two live extents overlap.
func requireDisjoint(t testing.TB, live []*edata.Extent) {
	t.Helper()
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			require.False(t, live[i].Overlaps(live[j]), "%v overlaps %v", live[i], live[j])
		}
	}
}
