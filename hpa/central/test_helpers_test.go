package central

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/growth"
)

const mib = 1 << 20

var errMapRefused = errors.New("map refused")

// countingMapper is a heap-backed mapper that records how many Map calls
// overlap in time.
type countingMapper struct {
	delay time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
	maps        atomic.Int32

	mu   sync.Mutex
	fail bool
}

func (m *countingMapper) Map(size int) ([]byte, error) {
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

func (m *countingMapper) Unmap(_ []byte) error { return nil }

func (m *countingMapper) Purge(mem []byte) error {
	clear(mem)
	return nil
}

func (m *countingMapper) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func newCentral(t *testing.T, cfg Config) (*Central, *edata.Pool, *countingMapper) {
	t.Helper()
	mapper, ok := cfg.Mapper.(*countingMapper)
	if !ok || mapper == nil {
		mapper = &countingMapper{}
		cfg.Mapper = mapper
	}
	if cfg.Growth == (growth.Config{}) {
		cfg.Growth = growth.Config{Min: 2 * mib, Max: 16 * mib}
	}
	pool := edata.NewPool(0)
	c, err := New(0, pool, &cfg)
	require.NoError(t, err)
	return c, pool, mapper
}
