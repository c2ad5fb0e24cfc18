//go:build linux

package mmap

import "golang.org/x/sys/unix"

// Hugify asks the kernel to back data with transparent huge pages.
func Hugify(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Madvise(data, unix.MADV_HUGEPAGE)
}
