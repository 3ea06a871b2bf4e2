package main

import (
	"fmt"

	"github.com/megaguards/mg-setup/internal/config"
	"github.com/megaguards/mg-setup/internal/sysdeps"
	"github.com/spf13/cobra"
)

// createSystemDepsCommand creates the system-deps subcommand
func createSystemDepsCommand() *cobra.Command {
	var (
		noSudo  bool
		dryRun  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "system-deps [package...]",
		Short: "Install the host packages the runtime build needs",
		Long: `Install host packages with apt-get. Without arguments the system_packages
list from the configuration is installed. Every package is tried even when
an earlier one fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			packages := args
			if len(packages) == 0 {
				cfg, err := config.Global().Provisioning()
				if err != nil {
					return err
				}
				packages = cfg.SystemPackages
			}

			if dryRun {
				for _, pkg := range packages {
					fmt.Fprintln(cmd.OutOrStdout(), pkg)
				}
				return nil
			}

			in := sysdeps.New()
			in.Exec = newExecutor()
			in.Sudo = !noSudo
			in.Verbose = verbose
			_, err := in.Install(cmd.Context(), packages)
			return err
		},
	}

	cmd.Flags().BoolVar(&noSudo, "no-sudo", false, "Run apt-get without sudo")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the packages without installing them")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print package manager output")

	return cmd
}
