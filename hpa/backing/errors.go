package backing

import "errors"

var (
	// ErrExhausted indicates the backing store cannot supply the requested
	// size: the reservation limit is reached or the OS refused the mapping.
	ErrExhausted = errors.New("backing: address space exhausted")

	// ErrBadRange indicates a released range that the manager never handed out.
	ErrBadRange = errors.New("backing: range not owned by this manager")

	// ErrBusy indicates Close was called while carved ranges are still live.
	ErrBusy = errors.New("backing: ranges still carved")
)
