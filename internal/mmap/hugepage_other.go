//go:build !linux

package mmap

// Hugify is a no-op where transparent huge pages are unavailable.
func Hugify(_ []byte) error {
	return nil
}
