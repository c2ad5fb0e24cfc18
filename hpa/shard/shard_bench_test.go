package shard

import (
	"testing"

	"github.com/joshuapare/hpakit/hpa/edata"
)

// Benchmark_Shard_AllocFree benchmarks a steady alloc/free cycle on a warm slab.
func Benchmark_Shard_AllocFree(b *testing.B) {
	s, _ := newShard(b)

	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		e, err := s.Alloc(uintptr(4+(i%16)*4) << 10) // 4-64 KiB
		if err != nil {
			b.Fatal(err)
		}
		if err := s.Free(e); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark_Shard_Fragmented benchmarks allocation against many partially
// used slabs.
func Benchmark_Shard_Fragmented(b *testing.B) {
	s, _ := newShard(b)

	// Fill 16 slabs, then free every other region to leave holes everywhere.
	var live []*edata.Extent
	for range 16 * 32 {
		e, err := s.Alloc(64 << 10)
		if err != nil {
			b.Fatal(err)
		}
		live = append(live, e)
	}
	for i := 0; i < len(live); i += 2 {
		if err := s.Free(live[i]); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		e, err := s.Alloc(uintptr(4+(i%8)*4) << 10) // 4-32 KiB
		if err != nil {
			b.Fatal(err)
		}
		if err := s.Free(e); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark_Shard_Parallel benchmarks contended alloc/free on one shard.
func Benchmark_Shard_Parallel(b *testing.B) {
	s, _ := newShard(b)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			e, err := s.Alloc(16 << 10)
			if err != nil {
				b.Error(err)
				return
			}
			if err := s.Free(e); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
