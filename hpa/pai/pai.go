// Package pai defines the page allocator interface every allocation backend
// implements, so the arena layer can hold shards and coarse backends behind
// one type and pick between them at run time.
package pai

import (
	"errors"

	"github.com/joshuapare/hpakit/hpa/edata"
)

var (
	// ErrNoRoom indicates an in-place expansion found no adjacent free space.
	// The caller falls back to allocate, copy and free.
	ErrNoRoom = errors.New("pai: no room to expand in place")

	// ErrBadExtent indicates an extent that the backend does not own.
	ErrBadExtent = errors.New("pai: extent not owned by this allocator")

	// ErrBadSize indicates a zero size, or a resize in the wrong direction.
	ErrBadSize = errors.New("pai: invalid size")
)

// PageAllocator is the uniform page-allocator capability.
//
// Sizes are in bytes and are rounded up to whole pages. All methods are safe
// for concurrent use.
type PageAllocator interface {
	// Alloc returns an extent of at least size bytes.
	Alloc(size uintptr) (*edata.Extent, error)

	// Expand grows e to newSize in place, or fails with ErrNoRoom leaving e
	// untouched.
	Expand(e *edata.Extent, newSize uintptr) error

	// Shrink releases the tail of e beyond newSize. It always succeeds for a
	// valid extent and a smaller, non-zero size.
	Shrink(e *edata.Extent, newSize uintptr) error

	// Free releases e. e must not be used afterwards.
	Free(e *edata.Extent) error
}
