package slabset

import "math"

// ClassConfig defines how longest-free-run sizes (in pages) map to buckets.
// Small runs get one bucket per page count; above SmallMax buckets grow
// geometrically so the number of classes stays bounded.
type ClassConfig struct {
	// Name for this configuration (for stats output)
	Name string

	SmallMax     int     // last page count with its own bucket (linear phase)
	MediumMax    int     // page count where geometric buckets stop; larger runs share the last bucket
	GrowthFactor float64 // geometric growth between bucket upper bounds
}

// Predefined configurations.
var (
	// ConfigHugePage suits 2 MiB slabs: 8 linear classes, then ~1.25x steps up
	// to 512 pages.
	ConfigHugePage = ClassConfig{
		Name:         "HugePage",
		SmallMax:     8,
		MediumMax:    512,
		GrowthFactor: 1.25,
	}

	// ConfigCoarse trades best-fit precision for fewer buckets.
	ConfigCoarse = ClassConfig{
		Name:         "Coarse",
		SmallMax:     4,
		MediumMax:    512,
		GrowthFactor: 2.0,
	}

	// DefaultConfig is used when none is specified.
	DefaultConfig = ConfigHugePage
)

// classTable holds the computed bucket boundaries.
type classTable struct {
	config     ClassConfig
	boundaries []int // inclusive upper bound of each class, in pages
	numClasses int
}

// newClassTable computes class boundaries from config.
func newClassTable(config ClassConfig) *classTable {
	t := &classTable{
		config:     config,
		boundaries: make([]int, 0, 32),
	}

	// Phase 1: one class per page count
	for n := 1; n <= config.SmallMax; n++ {
		t.boundaries = append(t.boundaries, n)
	}

	// Phase 2: geometric growth
	size := config.SmallMax
	for size < config.MediumMax {
		next := int(math.Ceil(float64(size) * config.GrowthFactor))
		if next <= size {
			next = size + 1 // Ensure progress
		}
		next = min(next, config.MediumMax)
		t.boundaries = append(t.boundaries, next)
		size = next
	}

	t.numClasses = len(t.boundaries)
	return t
}

// classOf returns the class index for a run of npages (npages >= 1).
// Returns numClasses for runs above MediumMax (the overflow class).
func (t *classTable) classOf(npages int) int {
	lo, hi := 0, t.numClasses-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if npages <= t.boundaries[mid] {
			if mid == 0 || npages > t.boundaries[mid-1] {
				return mid
			}
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return t.numClasses
}

// upperBound returns the inclusive page bound of class c; the overflow class
// is unbounded.
func (t *classTable) upperBound(c int) int {
	if c >= t.numClasses {
		return math.MaxInt
	}
	return t.boundaries[c]
}
