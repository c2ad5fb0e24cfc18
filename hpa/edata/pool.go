package edata

import (
	"github.com/joshuapare/hpakit/internal/lockrank"
)

// Pool is a shared, mutex-protected descriptor pool.
type Pool struct {
	mu lockrank.Mutex

	free  *Extent
	nfree int

	// limit caps outstanding descriptors (0 = unlimited). It models metadata
	// exhaustion.
	limit       int
	outstanding int

	stats PoolStats
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Outstanding int    // descriptors currently handed out
	Cached      int    // descriptors parked on the free list
	Acquired    uint64 // total Acquire successes
	Released    uint64 // total Release calls
	Created     uint64 // descriptors allocated from the Go heap
}

// NewPool creates a pool. limit bounds the number of outstanding descriptors;
// 0 means unlimited.
func NewPool(limit int) *Pool {
	p := &Pool{limit: limit}
	p.mu.Init(lockrank.RankDescriptorPool)
	return p
}

// Acquire returns a zeroed descriptor.
func (p *Pool) Acquire() (*Extent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked()
}

func (p *Pool) acquireLocked() (*Extent, error) {
	if p.limit > 0 && p.outstanding >= p.limit {
		return nil, ErrExhausted
	}
	e := p.free
	if e != nil {
		p.free = e.next
		p.nfree--
		e.reset()
	} else {
		e = &Extent{}
		p.stats.Created++
	}
	p.outstanding++
	p.stats.Acquired++
	return e, nil
}

// acquireBatch appends up to n descriptors to dst under one lock acquisition.
func (p *Pool) acquireBatch(dst []*Extent, n int) []*Extent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for range n {
		e, err := p.acquireLocked()
		if err != nil {
			break
		}
		dst = append(dst, e)
	}
	return dst
}

// Release returns e to the pool.
func (p *Pool) Release(e *Extent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(e)
}

func (p *Pool) releaseLocked(e *Extent) {
	if e.pooled {
		panic("edata: descriptor released twice: " + e.String())
	}
	e.reset()
	e.pooled = true
	e.next = p.free
	p.free = e
	p.nfree++
	p.outstanding--
	p.stats.Released++
}

// Flush drops every cached descriptor so the garbage collector can reclaim
// them. Outstanding descriptors are unaffected.
func (p *Pool) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = nil
	p.nfree = 0
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Outstanding = p.outstanding
	s.Cached = p.nfree
	return s
}

// Mutex exposes the pool lock for the fork protocol.
func (p *Pool) Mutex() *lockrank.Mutex { return &p.mu }
