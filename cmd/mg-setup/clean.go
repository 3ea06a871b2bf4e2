package main

import (
	"fmt"

	"github.com/megaguards/mg-setup/internal/cache"
	"github.com/megaguards/mg-setup/internal/config"
	"github.com/spf13/cobra"
)

func createCleanCommand() *cobra.Command {
	var (
		opts cache.CleanOptions
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove downloaded archives or extracted datasets",
		Long: `Remove downloaded archives or extracted datasets so the next setup run
fetches them again.

By default, the command removes the archives under lib/downloads together
with leftover staging files. Use flags to target datasets or to restrict
cleanup to a single archive or dataset directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			downloadsFlag := cmd.Flags().Changed("downloads")
			datasetsFlag := cmd.Flags().Changed("datasets")

			if all {
				opts.CleanDownloads = true
				opts.CleanDatasets = true
			} else if !downloadsFlag && !datasetsFlag {
				opts.CleanDownloads = true
			}

			if !opts.CleanDownloads && !opts.CleanDatasets {
				return fmt.Errorf("nothing to clean: specify --downloads, --datasets, or --all")
			}

			cfg, err := config.Global().Provisioning()
			if err != nil {
				return err
			}

			result, err := cache.Clean(cfg, opts)
			if err != nil {
				return err
			}

			output := []string{}
			if opts.DryRun {
				output = append(output, "Dry run: no files were deleted.")
			}

			if len(result.RemovedPaths) > 0 {
				header := "Removed paths:"
				if opts.DryRun {
					header = "Would remove:"
				}
				output = append(output, header)
				output = append(output, indentPaths(result.RemovedPaths)...)
			}

			if len(result.RemovedPaths) == 0 && len(result.SkippedPaths) == 0 {
				scopeDesc := ""
				if opts.CleanDownloads && opts.CleanDatasets {
					scopeDesc = "download or dataset"
				} else if opts.CleanDownloads {
					scopeDesc = "download"
				} else if opts.CleanDatasets {
					scopeDesc = "dataset"
				}

				if opts.Name != "" {
					scopeDesc += fmt.Sprintf(" entries named '%s'", opts.Name)
				} else {
					scopeDesc += " entries"
				}

				output = append(output, fmt.Sprintf("No %s found.", scopeDesc))
			}

			if len(result.SkippedPaths) > 0 {
				output = append(output, "Skipped (not found):")
				output = append(output, indentPaths(result.SkippedPaths)...)
			}

			writer := cmd.OutOrStdout()
			for _, line := range output {
				fmt.Fprintln(writer, line)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove both downloads and datasets")
	cmd.Flags().BoolVar(&opts.CleanDownloads, "downloads", false, "Remove downloaded archives")
	cmd.Flags().BoolVar(&opts.CleanDatasets, "datasets", false, "Remove extracted dataset directories")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Restrict cleanup to one archive base name or dataset directory")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be removed without deleting anything")

	return cmd
}

func indentPaths(values []string) []string {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = "  " + v
	}
	return lines
}
