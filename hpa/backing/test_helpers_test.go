package backing

import (
	"errors"
	"sync"
)

// heapMapper hands out Go-heap buffers so tests do not depend on mmap.
type heapMapper struct {
	mu       sync.Mutex
	maps     int
	unmaps   int
	purges   int
	failNext bool
}

var errMapRefused = errors.New("map refused")

func (h *heapMapper) Map(size int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failNext {
		h.failNext = false
		return nil, errMapRefused
	}
	h.maps++
	return make([]byte, size), nil
}

func (h *heapMapper) Unmap(_ []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unmaps++
	return nil
}

func (h *heapMapper) Purge(mem []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.purges++
	clear(mem)
	return nil
}
