package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/megaguards/mg-setup/internal/config"
	"github.com/spf13/cobra"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for mg-setup.

Available commands:
  init    Write a commented configuration file with default values
  show    Print the effective settings and the resolved directory layout`,
	}

	configCmd.AddCommand(createConfigInitCommand())
	configCmd.AddCommand(createConfigShowCommand())

	return configCmd
}

func createConfigInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [config-file]",
		Short: "Write a configuration file with default values",
		Long: `Write a commented configuration file with default values.

Without an argument the file is created as ./mg-setup.yml.

Examples:
  mg-setup config init
  mg-setup config init ~/.mg-setup/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}
}

func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "mg-setup.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaults := config.DefaultGlobalConfig()
	if err := defaults.SaveGlobalConfigWithComments(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n\n", configPath)
	fmt.Fprintf(out, "Defaults: root %s, %s hashes, %s env updates, %d probe attempts.\n",
		defaults.RootDir, defaults.HashAlgorithm, defaults.UpsertMode, defaults.Probe.Attempts)
	fmt.Fprintln(out, "Edit the file to customize these settings.")
	return nil
}

func createConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  executeConfigShow,
	}
}

// executeConfigShow prints the layout the setup steps will use once the
// config file and the command-line overrides are applied.
func executeConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Global().Provisioning()
	if err != nil {
		return err
	}

	source := actualConfigFile
	if source == "" {
		source = "(built-in defaults)"
	}
	registryFile := cfg.RegistryFile
	if registryFile == "" {
		registryFile = "(built-in registry)"
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"config file", source},
		{"root", cfg.RootDir},
		{"libraries", cfg.LibDir},
		{"downloads", cfg.DownloadsDir},
		{"datasets", cfg.DatasetDir},
		{"env file", cfg.EnvFile},
		{"benchmarks", cfg.BenchmarksDir},
		{"build dir", cfg.BuildDir},
		{"registry", registryFile},
		{"platform", cfg.Platform},
		{"hash algorithm", cfg.HashAlgorithm},
		{"upsert mode", cfg.UpsertMode},
		{"download timeout", durationOrNone(cfg.DownloadTimeout.String(), cfg.DownloadTimeout == 0)},
		{"command timeout", durationOrNone(cfg.CommandTimeout.String(), cfg.CommandTimeout == 0)},
		{"probe attempts", fmt.Sprint(cfg.ProbeAttempts)},
		{"log level", config.LogLevel()},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s:\t%s\n", r[0], r[1])
	}
	return w.Flush()
}

func durationOrNone(s string, none bool) string {
	if none {
		return "none"
	}
	return s
}
