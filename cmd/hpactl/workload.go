package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/hpakit/hpa/arena"
	"github.com/joshuapare/hpakit/hpa/edata"
	"github.com/joshuapare/hpakit/hpa/pai"
)

type workloadOptions struct {
	arenas  int
	workers int
	ops     int
	seed    uint64

	minKiB      int
	maxKiB      int
	freeRatio   float64
	resizeRatio float64
	disableAt   int // disable every shard after this many ops per worker, 0 = never

	slabGoalKiB     int
	slabAllocMaxKiB int
	smallMaxKiB     int
	largeMinKiB     int
	reserveLimitMiB int
}

var workloadOpts = workloadOptions{
	arenas:          2,
	workers:         4,
	ops:             10000,
	seed:            1,
	minKiB:          4,
	maxKiB:          256,
	freeRatio:       0.45,
	resizeRatio:     0.1,
	slabGoalKiB:     int(arena.DefaultConfig.Shard.SlabGoal >> 10),
	slabAllocMaxKiB: int(arena.DefaultConfig.Shard.SlabAllocMax >> 10),
	smallMaxKiB:     int(arena.DefaultConfig.Shard.SmallMax >> 10),
	largeMinKiB:     int(arena.DefaultConfig.Shard.LargeMin >> 10),
}

func init() {
	cmd := newRunCmd()
	f := cmd.Flags()
	o := &workloadOpts
	f.IntVar(&o.arenas, "arenas", o.arenas, "Number of arenas")
	f.IntVar(&o.workers, "workers", o.workers, "Concurrent workers (round-robin over arenas)")
	f.IntVar(&o.ops, "ops", o.ops, "Operations per worker")
	f.Uint64Var(&o.seed, "seed", o.seed, "Random seed")
	f.IntVar(&o.minKiB, "min", o.minKiB, "Smallest request in KiB")
	f.IntVar(&o.maxKiB, "max", o.maxKiB, "Largest request in KiB")
	f.Float64Var(&o.freeRatio, "free-ratio", o.freeRatio, "Probability an operation frees a live region")
	f.Float64Var(&o.resizeRatio, "resize-ratio", o.resizeRatio, "Probability an operation resizes a live region")
	f.IntVar(&o.disableAt, "disable-at", o.disableAt, "Disable every shard after this many operations per worker")
	f.IntVar(&o.slabGoalKiB, "slab-goal", o.slabGoalKiB, "Slab size requested on growth, in KiB")
	f.IntVar(&o.slabAllocMaxKiB, "slab-alloc-max", o.slabAllocMaxKiB, "Largest request carved from a shared slab, in KiB")
	f.IntVar(&o.smallMaxKiB, "small-max", o.smallMaxKiB, "Largest request a shard attempts, in KiB")
	f.IntVar(&o.largeMinKiB, "large-min", o.largeMinKiB, "Bypass threshold, in KiB")
	f.IntVar(&o.reserveLimitMiB, "reserve-limit", o.reserveLimitMiB, "Cap on reserved address space in MiB, 0 = unlimited")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic allocation workload",
		Long: `The run command creates a registry of arenas, drives random allocate,
resize and free operations against them from concurrent workers, frees
everything and prints the resulting statistics.

Example:
  hpactl run
  hpactl run --arenas 4 --workers 16 --ops 50000
  hpactl run --max 2048 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd.Context(), workloadOpts)
		},
	}
	return cmd
}

// workloadResult is what run prints.
type workloadResult struct {
	Elapsed   time.Duration
	Ops       uint64
	Allocs    uint64
	Failures  uint64
	Resizes   uint64
	NoRoom    uint64 // expansions that had to give up
	PeakLive  int
	Registry  arena.RegistryStats
	CloseNote string `json:",omitempty"`
}

func (o workloadOptions) config() (arena.Config, error) {
	if o.arenas <= 0 || o.workers <= 0 || o.ops < 0 {
		return arena.Config{}, errors.New("arenas and workers must be positive")
	}
	if o.minKiB <= 0 || o.maxKiB < o.minKiB {
		return arena.Config{}, fmt.Errorf("invalid size range %d-%d KiB", o.minKiB, o.maxKiB)
	}
	cfg := arena.DefaultConfig
	cfg.Shard.SlabGoal = uintptr(o.slabGoalKiB) << 10
	cfg.Shard.SlabAllocMax = uintptr(o.slabAllocMaxKiB) << 10
	cfg.Shard.SmallMax = uintptr(o.smallMaxKiB) << 10
	cfg.Shard.LargeMin = uintptr(o.largeMinKiB) << 10
	cfg.Central.ReserveLimit = uintptr(o.reserveLimitMiB) << 20
	return cfg, nil
}

func runWorkload(ctx context.Context, o workloadOptions) error {
	res, err := executeWorkload(ctx, o)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	renderResult(res)
	return nil
}

// newRegistry is replaced in tests to observe the registry a run creates.
var newRegistry = arena.NewRegistry

func executeWorkload(ctx context.Context, o workloadOptions) (*workloadResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	reg, err := newRegistry(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	arenas := make([]*arena.Arena, o.arenas)
	for i := range arenas {
		if arenas[i], err = reg.NewArena(); err != nil {
			return nil, errors.Join(err, reg.Close())
		}
	}
	printVerbose("Running %d workers x %d ops over %d arenas\n", o.workers, o.ops, o.arenas)

	results := make([]workerResult, o.workers)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range o.workers {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(o.seed, uint64(w)))
			r, err := runWorker(gctx, arenas[w%len(arenas)], rng, o)
			results[w] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		// Workers stop without freeing; Close reclaims their slabs.
		return nil, errors.Join(err, reg.Close())
	}

	res := &workloadResult{Elapsed: time.Since(start)}
	for _, r := range results {
		res.Ops += r.ops
		res.Allocs += r.allocs
		res.Failures += r.failures
		res.Resizes += r.resizes
		res.NoRoom += r.noRoom
		res.PeakLive += r.peakLive
	}
	res.Registry = reg.Stats()
	if err := reg.Close(); err != nil {
		res.CloseNote = err.Error()
	}
	return res, nil
}

type workerResult struct {
	ops, allocs, failures, resizes, noRoom uint64
	peakLive                               int
}

func runWorker(ctx context.Context, a *arena.Arena, rng *rand.Rand, o workloadOptions) (workerResult, error) {
	var (
		r    workerResult
		live []*edata.Extent
	)
	for i := range o.ops {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		if o.disableAt > 0 && i == o.disableAt {
			a.Disable()
		}
		r.ops++

		p := rng.Float64()
		switch {
		case len(live) > 0 && p < o.freeRatio:
			j := rng.IntN(len(live))
			if err := a.Free(live[j]); err != nil {
				return r, fmt.Errorf("free: %w", err)
			}
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]

		case len(live) > 0 && p < o.freeRatio+o.resizeRatio:
			e := live[rng.IntN(len(live))]
			r.resizes++
			if rng.IntN(2) == 0 && e.Size > 4<<10 {
				if err := a.Shrink(e, e.Size/2); err != nil {
					return r, fmt.Errorf("shrink: %w", err)
				}
				break
			}
			err := a.Expand(e, e.Size*2)
			if errors.Is(err, pai.ErrNoRoom) {
				r.noRoom++
			} else if err != nil {
				return r, fmt.Errorf("expand: %w", err)
			}

		default:
			size := uintptr(o.minKiB+rng.IntN(o.maxKiB-o.minKiB+1)) << 10
			e, err := a.Alloc(size)
			if err != nil {
				r.failures++
				continue
			}
			r.allocs++
			b := e.Bytes()
			b[0], b[len(b)-1] = 0xa5, 0x5a
			live = append(live, e)
			r.peakLive = max(r.peakLive, len(live))
		}
	}
	for _, e := range live {
		if err := a.Free(e); err != nil {
			return r, fmt.Errorf("free: %w", err)
		}
	}
	return r, nil
}
