package arena

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joshuapare/hpakit/hpa/backing"
	"github.com/joshuapare/hpakit/hpa/central"
	"github.com/joshuapare/hpakit/hpa/direct"
	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/shard"
	"github.com/joshuapare/hpakit/internal/lockrank"
	"github.com/joshuapare/hpakit/internal/logger"
)

// Config configures a Registry.
type Config struct {
	Central central.Config
	Shard   shard.Config

	// PoolLimit caps outstanding descriptors in the shared pool (0 = unlimited).
	PoolLimit int

	// Mapper backs the coarse backends; nil selects backing.OSMapper.
	// The central authority uses Central.Mapper.
	Mapper backing.Mapper
}

// DefaultConfig uses the default central, shard and growth settings.
var DefaultConfig = Config{
	Central: central.DefaultConfig,
	Shard:   shard.DefaultConfig,
}

// Registry owns the central authority, the shared descriptor pool and every
// arena created from them. It is the one place that knows all the locks, so
// it drives the fork protocol.
type Registry struct {
	// mu guards arenas. No allocation path takes it.
	mu     sync.Mutex
	arenas []*Arena

	cfg     Config
	pool    *edata.Pool
	central *central.Central
}

// RegistryStats is a snapshot of the whole registry.
type RegistryStats struct {
	Central central.Stats
	Pool    edata.PoolStats
	Arenas  []Stats
}

// NewRegistry creates the shared central authority and descriptor pool. A
// nil config selects DefaultConfig.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	if err := cfg.Shard.Validate(); err != nil {
		return nil, err
	}
	pool := edata.NewPool(cfg.PoolLimit)
	c, err := central.New(0, pool, &cfg.Central)
	if err != nil {
		return nil, err
	}
	return &Registry{cfg: *cfg, pool: pool, central: c}, nil
}

// Central returns the shared central authority.
func (r *Registry) Central() *central.Central { return r.central }

// NewArena creates the next arena with its own shard and coarse backend.
func (r *Registry) NewArena() (*Arena, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uint32(len(r.arenas))
	sh, err := shard.New(r.central, r.pool, id, &r.cfg.Shard)
	if err != nil {
		return nil, fmt.Errorf("arena %d: %w", id, err)
	}
	a := New(id, sh, direct.New(id, r.pool, r.cfg.Mapper))
	r.arenas = append(r.arenas, a)
	logger.Debug("arena: created", "arena", id)
	return a, nil
}

// Arena returns arena id.
func (r *Registry) Arena(id uint32) (*Arena, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.arenas) {
		return nil, false
	}
	return r.arenas[id], true
}

// Arenas returns every arena in creation order.
func (r *Registry) Arenas() []*Arena {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Arena(nil), r.arenas...)
}

// Stats returns a snapshot of every component.
func (r *Registry) Stats() RegistryStats {
	st := RegistryStats{
		Central: r.central.Stats(),
		Pool:    r.pool.Stats(),
	}
	for _, a := range r.Arenas() {
		st.Arenas = append(st.Arenas, a.Stats())
	}
	return st
}

// Close destroys every shard and then the central authority. Coarse regions
// still allocated are not unmapped.
func (r *Registry) Close() error {
	var errs []error
	for _, a := range r.Arenas() {
		if err := a.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.central.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ============================================================================
// Fork protocol
// ============================================================================

// Locks returns every allocator lock in the global acquisition order: all
// shard growth locks, all shard local locks, the central growth lock, the
// central bookkeeping lock and finally the shared descriptor pool lock.
func (r *Registry) Locks() []*lockrank.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locksLocked()
}

func (r *Registry) locksLocked() []*lockrank.Mutex {
	locks := make([]*lockrank.Mutex, 0, 2*len(r.arenas)+3)
	for _, a := range r.arenas {
		locks = append(locks, a.shard.GrowLock())
	}
	for _, a := range r.arenas {
		locks = append(locks, a.shard.LocalLock())
	}
	locks = append(locks, r.central.Locks()...)
	return append(locks, r.pool.Mutex())
}

// Prefork acquires every lock in order. The registry lock stays held until
// the matching postfork call, so no arena can be created in between.
func (r *Registry) Prefork() {
	r.mu.Lock()
	lockrank.LockAll(r.locksLocked())
}

// PostforkParent releases everything Prefork took, in reverse order.
func (r *Registry) PostforkParent() {
	lockrank.UnlockAll(r.locksLocked())
	r.mu.Unlock()
}

// PostforkChild reinitializes every lock in the child.
func (r *Registry) PostforkChild() {
	lockrank.ReinitAll(r.locksLocked())
	r.mu = sync.Mutex{}
}
