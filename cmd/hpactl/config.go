package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/hpakit/hpa/arena"
)

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the default allocator configuration",
		Long: `The config command prints the default shard thresholds and growth curve
that run starts from.

Example:
  hpactl config
  hpactl config --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig()
		},
	}
}

type configView struct {
	SlabGoal     string
	SlabAllocMax string
	SmallMax     string
	LargeMin     string
	GrowthMin    string
	GrowthMax    string
}

func runConfig() error {
	cfg := arena.DefaultConfig
	v := configView{
		SlabGoal:     bytesStr(cfg.Shard.SlabGoal),
		SlabAllocMax: bytesStr(cfg.Shard.SlabAllocMax),
		SmallMax:     bytesStr(cfg.Shard.SmallMax),
		LargeMin:     bytesStr(cfg.Shard.LargeMin),
		GrowthMin:    bytesStr(cfg.Central.Growth.Min),
		GrowthMax:    bytesStr(cfg.Central.Growth.Max),
	}
	if jsonOut {
		return printJSON(v)
	}
	printInfo("slab goal:       %s\n", v.SlabGoal)
	printInfo("slab alloc max:  %s\n", v.SlabAllocMax)
	printInfo("small max:       %s\n", v.SmallMax)
	printInfo("large min:       %s\n", v.LargeMin)
	printInfo("growth:          %s .. %s\n", v.GrowthMin, v.GrowthMax)
	return nil
}
