package slabset

import "github.com/joshuapare/hpakit/hpa/slab"

// entry tracks one slab's position in the set.
type entry struct {
	slab      *slab.Slab
	bucket    int // class index, or bucketFull
	heapIndex int // position in its bucket heap, -1 when in the full bucket
}

const bucketFull = -1

// slabHeap is a min-heap on longest free run, oldest slab first on ties.
// Smallest runs are at the top, giving best fit.
type slabHeap []*entry

func (h *slabHeap) Len() int { return len(*h) }

func (h *slabHeap) Less(i, j int) bool {
	a, b := (*h)[i].slab, (*h)[j].slab
	if a.LongestFree() != b.LongestFree() {
		return a.LongestFree() < b.LongestFree()
	}
	return a.ID() < b.ID()
}

func (h *slabHeap) Swap(i, j int) {
	(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
	(*h)[i].heapIndex = i
	(*h)[j].heapIndex = j
}

func (h *slabHeap) Push(x any) {
	e := x.(*entry) //nolint:errcheck // heap.Interface contract guarantees type
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *slabHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[0 : n-1]
	return e
}
