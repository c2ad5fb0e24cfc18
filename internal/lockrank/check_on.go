//go:build lockrankcheck

package lockrank

import (
	"bytes"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"sync"
)

var (
	heldMu sync.Mutex
	held   = map[uint64][]*Mutex{}
)

// goid parses the current goroutine id out of the "goroutine N [" header
// runtime.Stack writes. Slow, which is why this file is tag-gated.
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("lockrank: cannot parse goroutine id: %v", err))
	}
	return id
}

func checkAcquire(m *Mutex) {
	if m.rank == RankUnranked {
		return
	}
	g := goid()
	heldMu.Lock()
	var top *Mutex
	for _, h := range held[g] {
		if h.rank != RankUnranked && (top == nil || h.rank > top.rank) {
			top = h
		}
	}
	heldMu.Unlock()
	if top != nil && m.rank < top.rank {
		panic(fmt.Sprintf("lockrank: acquiring %s while holding %s", m.rank, top.rank))
	}
}

func noteHeld(m *Mutex) {
	g := goid()
	heldMu.Lock()
	held[g] = append(held[g], m)
	heldMu.Unlock()
}

// noteReleased drops m from the releasing goroutine's list, or from whichever
// goroutine took it when the unlock happens elsewhere.
func noteReleased(m *Mutex) {
	g := goid()
	heldMu.Lock()
	defer heldMu.Unlock()
	if dropHeld(g, m) {
		return
	}
	for other := range held {
		if dropHeld(other, m) {
			return
		}
	}
}

func dropHeld(g uint64, m *Mutex) bool {
	hs := held[g]
	i := slices.Index(hs, m)
	if i < 0 {
		return false
	}
	hs = slices.Delete(hs, i, i+1)
	if len(hs) == 0 {
		delete(held, g)
	} else {
		held[g] = hs
	}
	return true
}

func forget(m *Mutex) {
	heldMu.Lock()
	defer heldMu.Unlock()
	for g := range held {
		for dropHeld(g, m) {
		}
	}
}
