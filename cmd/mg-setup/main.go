package main

import (
	"fmt"
	"os"

	"github.com/megaguards/mg-setup/internal/config"
	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/megaguards/mg-setup/internal/utils/security"
	"github.com/spf13/cobra"
)

// Command-line flags that can override config file settings
var (
	configFile  string = "" // Path to config file
	logLevel    string = "" // Empty means use config file value
	logFilePath string = "" // Empty means use config file value
	rootDir     string = "" // Empty means use config file value
)

var (
	actualConfigFile string
	loggerCleanup    func()
)

func init() {
	// Input validation is attached to every subcommand; the root hook that
	// loads the configuration must still run before it.
	cobra.EnableTraverseRunHooks = true
}

func main() {
	rootCmd := createRootCommand()
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	err := rootCmd.Execute()
	if loggerCleanup != nil {
		loggerCleanup()
	}
	if err != nil {
		os.Exit(1)
	}
}

// initConfig loads the config file named by --config, or the first one
// found in the standard locations, applies the flag overrides and sets up
// the logger.
func initConfig() error {
	actualConfigFile = configFile
	if actualConfigFile == "" {
		actualConfigFile = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(actualConfigFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if logLevel != "" {
		globalConfig.Logging.Level = logLevel
	}
	if logFilePath != "" {
		globalConfig.Logging.File = logFilePath
	}
	if rootDir != "" {
		globalConfig.RootDir = rootDir
	}
	if err := globalConfig.Validate(); err != nil {
		return err
	}
	config.SetGlobal(globalConfig)

	if loggerCleanup != nil {
		loggerCleanup()
	}
	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    globalConfig.Logging.Level,
		FilePath: globalConfig.Logging.File,
	})
	if err != nil {
		return err
	}
	loggerCleanup = cleanup

	log := logger.Logger()
	if actualConfigFile != "" {
		log.Infof("Using configuration from: %s", actualConfigFile)
	}
	log.Debugf("Config: root_dir=%s, hash=%s, upsert=%s, registry=%q",
		globalConfig.RootDir, globalConfig.HashAlgorithm, globalConfig.UpsertMode, globalConfig.Registry.File)
	return nil
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	opts := &setupOptions{}

	rootCmd := &cobra.Command{
		Use:   "mg-setup",
		Short: "Set up a MegaGuards checkout",
		Long: `mg-setup provisions the native libraries and datasets a MegaGuards
checkout needs, records them in the mx environment file and runs the
runtime health checks (OpenCL devices, polyhedral library, junit).

Running mg-setup without a subcommand is the same as 'mg-setup setup'.

Use 'mg-setup --help' to see available commands.
Use 'mg-setup <command> --help' for more information about a command.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeSetup(cmd, opts)
		},
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "",
		"Log file path to tee logs (overrides configuration file)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "",
		"MegaGuards checkout directory (overrides root_dir)")

	addSetupFlags(rootCmd, opts)

	// Add all subcommands
	rootCmd.AddCommand(createSetupCommand())
	rootCmd.AddCommand(createStatusCommand())
	rootCmd.AddCommand(createListCommand())
	rootCmd.AddCommand(createSystemDepsCommand())
	rootCmd.AddCommand(createCleanCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createInstallCompletionCommand())

	return rootCmd
}
