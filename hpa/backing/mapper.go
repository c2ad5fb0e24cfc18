package backing

import (
	"github.com/joshuapare/hpakit/internal/logger"
	"github.com/joshuapare/hpakit/internal/mmap"
)

// Mapper is the OS primitive the manager reserves address space with.
type Mapper interface {
	// Map returns size bytes of zeroed read-write memory.
	Map(size int) ([]byte, error)
	// Unmap releases a mapping returned by Map.
	Unmap(mem []byte) error
	// Purge drops the physical pages behind mem while keeping it mapped.
	Purge(mem []byte) error
}

// OSMapper maps anonymous memory and advises transparent huge pages.
type OSMapper struct{}

var _ Mapper = OSMapper{}

func (OSMapper) Map(size int) ([]byte, error) {
	mem, err := mmap.Map(size)
	if err != nil {
		return nil, err
	}
	if err := mmap.Hugify(mem); err != nil {
		// THP may be disabled; the mapping is still usable.
		logger.Debug("backing: huge page advice rejected", "size", size, "err", err)
	}
	return mem, nil
}

func (OSMapper) Unmap(mem []byte) error { return mmap.Unmap(mem) }

func (OSMapper) Purge(mem []byte) error { return mmap.Purge(mem) }
