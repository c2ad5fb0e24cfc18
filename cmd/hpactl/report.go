package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/joshuapare/hpakit/hpa/arena"
	"github.com/joshuapare/hpakit/hpa/slabset"
)

// renderResult prints a workload result as a set of tables.
func renderResult(res *workloadResult) {
	printInfo("Workload: %d ops, %d allocs, %d failed, %d resizes (%d without room), peak %d live, %s\n\n",
		res.Ops, res.Allocs, res.Failures, res.Resizes, res.NoRoom, res.PeakLive, res.Elapsed.Round(time.Millisecond))
	if quiet {
		return
	}
	renderCentral(res.Registry)
	renderArenas(res.Registry.Arenas)
	if verbose {
		for _, a := range res.Registry.Arenas {
			fmt.Printf("\nArena %d slab classes:\n", a.ID)
			renderClasses(a.Shard.Slabs)
		}
	}
	if res.CloseNote != "" {
		fmt.Fprintf(os.Stderr, "Warning: close: %s\n", res.CloseNote)
	}
}

func renderCentral(st arena.RegistryStats) {
	c := st.Central
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Central", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"grow calls", u64(c.GrowCalls)},
		{"grow failures", u64(c.GrowFailures)},
		{"reservations", u64(c.Reservations)},
		{"reuses", u64(c.Reuses)},
		{"reclaims", u64(c.Reclaims)},
		{"reserved", bytesStr(c.Backing.Reserved)},
		{"next target", bytesStr(c.Target)},
		{"descriptors created", u64(st.Pool.Created)},
		{"descriptors outstanding", strconv.Itoa(st.Pool.Outstanding)},
	})
	table.Render()
}

func renderArenas(arenas []arena.Stats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Arena", "State", "Shard", "Direct", "Fallback", "Grows", "Dedicated", "Slabs", "Expands", "No room"})
	for _, a := range arenas {
		table.Append([]string{
			strconv.FormatUint(uint64(a.ID), 10),
			a.Shard.State.String(),
			u64(a.ShardAllocs),
			u64(a.DirectAllocs),
			u64(a.Fallbacks),
			u64(a.Shard.Grows),
			u64(a.Shard.Dedicated),
			strconv.Itoa(a.Shard.Slabs.Total().Slabs),
			u64(a.Shard.Expands + a.Direct.Expands),
			u64(a.Shard.ExpandFailures),
		})
	}
	table.Render()
}

func renderClasses(st slabset.Stats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Class", "Longest free <=", "Slabs", "Active pages", "Free pages"})
	row := func(name, bound string, b slabset.BinStats) {
		table.Append([]string{name, bound, strconv.Itoa(b.Slabs), strconv.Itoa(b.Active), strconv.Itoa(b.Inactive)})
	}
	row("full", "0", st.Full)
	for i, b := range st.Classes {
		if b.Slabs == 0 {
			continue
		}
		bound := "-"
		if st.Bounds[i] >= 0 {
			bound = strconv.Itoa(st.Bounds[i])
		}
		row(strconv.Itoa(i), bound, b)
	}
	table.Render()
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func bytesStr(n uintptr) string {
	switch {
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%d GiB", n>>30)
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%d KiB", n>>10)
	}
	return fmt.Sprintf("%d B", n)
}
