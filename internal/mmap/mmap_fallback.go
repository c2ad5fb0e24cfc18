//go:build !unix

// Package mmap provides platform-specific helpers for anonymous memory mappings
// used as allocator backing store.
package mmap

import "fmt"

// Map allocates size bytes from the Go heap when mmap is not available.
func Map(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid mapping size %d", size)
	}
	return make([]byte, size), nil
}

// Unmap is a no-op; the garbage collector owns heap-backed mappings.
func Unmap(_ []byte) error {
	return nil
}

// Purge zeroes data so callers observe the same contents as after madvise.
func Purge(data []byte) error {
	clear(data)
	return nil
}
