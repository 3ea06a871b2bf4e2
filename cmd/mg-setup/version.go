package main

import (
	"fmt"
	"runtime"

	"github.com/megaguards/mg-setup/internal/config/version"
	"github.com/spf13/cobra"
)

func createVersionCommand() *cobra.Command {
	var short bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version.Version)
				return
			}
			fmt.Fprintf(out, "%s v%s (%s/%s)\n", version.Toolname, version.Version, runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Build Date: %s\n", version.BuildDate)
			fmt.Fprintf(out, "Commit: %s\n", version.CommitSHA)
			fmt.Fprintf(out, "Organization: %s\n", version.Organization)
		},
	}
	versionCmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return versionCmd
}
