// Package lockrank gives every mutex in the allocator a static rank and
// provides the ordered acquire/release helpers used by the fork protocol.
//
// The total order, lowest rank first, is:
//
//	ShardGrow < Shard < CentralGrow < Central < DescriptorPool
//
// A goroutine holding a lock of rank r may only acquire locks of rank >= r.
// Locks of equal rank (one per shard) are never nested by ordinary
// operations; only the fork path holds several of them, and it takes them in
// registration order.
//
// Building with the lockrankcheck tag makes every Lock verify, per goroutine,
// that it does not step below the highest rank already held.
package lockrank

import (
	"fmt"
	"sync"
)

// Rank is the position of a lock in the global acquisition order.
type Rank int

const (
	RankUnranked Rank = iota
	RankShardGrow
	RankShard
	RankCentralGrow
	RankCentral
	RankDescriptorPool
)

var rankNames = [...]string{
	RankUnranked:       "unranked",
	RankShardGrow:      "shard-grow",
	RankShard:          "shard",
	RankCentralGrow:    "central-grow",
	RankCentral:        "central",
	RankDescriptorPool: "descriptor-pool",
}

func (r Rank) String() string {
	if r < 0 || int(r) >= len(rankNames) {
		return fmt.Sprintf("rank(%d)", int(r))
	}
	return rankNames[r]
}

// Mutex is a sync.Mutex tagged with its rank.
type Mutex struct {
	mu   sync.Mutex
	rank Rank
}

// Init sets the rank. It must be called before the mutex is shared.
func (m *Mutex) Init(r Rank) { m.rank = r }

// Rank returns the mutex's rank.
func (m *Mutex) Rank() Rank { return m.rank }

func (m *Mutex) Lock() {
	checkAcquire(m)
	m.mu.Lock()
	noteHeld(m)
}

func (m *Mutex) Unlock() {
	noteReleased(m)
	m.mu.Unlock()
}

func (m *Mutex) TryLock() bool {
	if !m.mu.TryLock() {
		return false
	}
	noteHeld(m)
	return true
}

// Reinit forces the mutex back to the unlocked state. It is only valid in a
// post-fork child, where the single surviving goroutine holds every lock.
func (m *Mutex) Reinit() {
	forget(m)
	m.mu = sync.Mutex{}
}

// LockAll acquires ms in slice order. It panics if the slice violates the
// rank order, since taking the locks anyway could deadlock against a normal
// operation.
func LockAll(ms []*Mutex) {
	if err := CheckOrder(ms); err != nil {
		panic(err)
	}
	for _, m := range ms {
		m.Lock()
	}
}

// UnlockAll releases ms in reverse slice order.
func UnlockAll(ms []*Mutex) {
	for i := len(ms) - 1; i >= 0; i-- {
		ms[i].Unlock()
	}
}

// ReinitAll reinitializes ms in reverse slice order.
func ReinitAll(ms []*Mutex) {
	for i := len(ms) - 1; i >= 0; i-- {
		ms[i].Reinit()
	}
}

// CheckOrder reports the first place where ms steps down in rank.
func CheckOrder(ms []*Mutex) error {
	for i := 1; i < len(ms); i++ {
		if ms[i].rank < ms[i-1].rank {
			return fmt.Errorf("lockrank: %s (#%d) acquired after %s (#%d)",
				ms[i].rank, i, ms[i-1].rank, i-1)
		}
	}
	return nil
}
