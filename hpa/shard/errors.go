package shard

import "errors"

var (
	// ErrTooLarge indicates a request above the shard's attemptable maximum or
	// at/above its bypass threshold. The shard rejects it without trying.
	ErrTooLarge = errors.New("shard: request exceeds shard maximum")

	// ErrNoSpace indicates no slab could hold the request even after a
	// successful growth.
	ErrNoSpace = errors.New("shard: no slab fits request")

	// ErrDestroyed indicates use of a destroyed shard.
	ErrDestroyed = errors.New("shard: destroyed")

	// ErrBadConfig indicates an unusable shard configuration.
	ErrBadConfig = errors.New("shard: invalid config")

	// errNoFit signals a slab-set miss on the fast path.
	errNoFit = errors.New("shard: no fit")
)
