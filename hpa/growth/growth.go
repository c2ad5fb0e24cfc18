// Package growth implements the exponential growth-size controller that picks
// how much address space the central authority reserves on each growth.
//
// Targets are Min << step, capped at Max. A successful reservation moves step
// just past the size that was granted, so consecutive growths double until the
// cap (monotonic and saturating). A failed reservation steps back once, so the
// next attempt asks for half as much.
//
// A Controller is not safe for concurrent use; the central authority calls it
// only while holding its growth lock.
package growth

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/joshuapare/hpakit/internal/pagefmt"
)

// ErrBadConfig indicates an unusable controller configuration.
var ErrBadConfig = errors.New("growth: invalid config")

// Config bounds the reservation sizes the controller hands out.
type Config struct {
	Min uintptr // first (and smallest) reservation; a multiple of the huge page size
	Max uintptr // largest reservation; a power-of-two multiple of Min
}

// DefaultConfig reserves 2 MiB first and saturates at 1 GiB.
var DefaultConfig = Config{
	Min: pagefmt.HugePageSize,
	Max: 1 << 30,
}

// Validate checks the config invariants.
func (c Config) Validate() error {
	if c.Min == 0 || c.Min&pagefmt.HugePageMask != 0 {
		return fmt.Errorf("%w: min %d is not a positive multiple of %d", ErrBadConfig, c.Min, pagefmt.HugePageSize)
	}
	if c.Max < c.Min {
		return fmt.Errorf("%w: max %d below min %d", ErrBadConfig, c.Max, c.Min)
	}
	if r := c.Max / c.Min; c.Max%c.Min != 0 || r&(r-1) != 0 {
		return fmt.Errorf("%w: max %d is not min %d times a power of two", ErrBadConfig, c.Max, c.Min)
	}
	return nil
}

// Controller tracks the next growth target.
type Controller struct {
	cfg     Config
	step    int
	maxStep int

	successes uint64
	failures  uint64
}

// New returns a controller starting at cfg.Min.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:     cfg,
		maxStep: bits.TrailingZeros64(uint64(cfg.Max / cfg.Min)),
	}, nil
}

// Target returns the current reservation target ignoring any specific need.
func (c *Controller) Target() uintptr {
	return c.cfg.Min << c.step
}

// Next returns the size to reserve for a request needing at least need bytes.
// The result is the smallest target step >= max(current target, need), capped
// at Max; a need above Max is returned huge-page aligned, uncapped.
func (c *Controller) Next(need uintptr) uintptr {
	size := c.Target()
	for size < need && size < c.cfg.Max {
		size <<= 1
	}
	if size < need {
		return pagefmt.AlignHugePage(need)
	}
	return size
}

// Record feeds back the outcome of a reservation of size bytes.
func (c *Controller) Record(size uintptr, ok bool) {
	if !ok {
		c.failures++
		if c.step > 0 {
			c.step--
		}
		return
	}
	c.successes++
	next := c.stepFor(size) + 1
	if next > c.step {
		c.step = min(next, c.maxStep)
	}
}

// stepFor returns the largest step whose target does not exceed size.
func (c *Controller) stepFor(size uintptr) int {
	s := 0
	for s < c.maxStep && c.cfg.Min<<(s+1) <= size {
		s++
	}
	return s
}

// Stats reports how many reservations succeeded and failed.
func (c *Controller) Stats() (successes, failures uint64) {
	return c.successes, c.failures
}
