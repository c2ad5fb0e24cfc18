package main

import (
	"runtime"
	rtdebug "runtime/debug"

	"github.com/spf13/cobra"
)

// Overridden at link time with -X main.version=... and friends. commit falls
// back to the VCS revision stamped into the binary.
var (
	version = "0.1.0"
	commit  = ""
	date    = ""
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Built   string `json:"built,omitempty"`
	Go      string `json:"go"`
}

func currentVersion() versionInfo {
	v := versionInfo{Version: rootCmd.Version, Commit: commit, Built: date, Go: runtime.Version()}
	if v.Commit != "" {
		return v
	}
	if bi, ok := rtdebug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				v.Commit = s.Value
			}
		}
	}
	return v
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := currentVersion()
			if jsonOut {
				return printJSON(v)
			}
			printInfo("hpactl %s (%s)\n", v.Version, v.Go)
			if v.Commit != "" {
				printInfo("  commit: %s\n", v.Commit)
			}
			if v.Built != "" {
				printInfo("  built:  %s\n", v.Built)
			}
			return nil
		},
	})
}
