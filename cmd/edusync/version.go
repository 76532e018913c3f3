package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: "setup",
	Short:   "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		commit := ""
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "edusync %s", Version)
		if commit != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", commit)
		}
		fmt.Fprintf(cmd.OutOrStdout(), " %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(cmd.OutOrStdout(), "drivers: %s\n", strings.Join(store.Drivers(), ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
