package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// createInstallCompletionCommand creates the install-completion subcommand
func createInstallCompletionCommand() *cobra.Command {
	installCompletionCmd := &cobra.Command{
		Use:   "install-completion",
		Short: "Install shell completion script",
		Long: `Install shell completion script for Bash, Zsh, Fish, or PowerShell.
Automatically detects your shell and installs the appropriate completion script.`,
		Args: cobra.NoArgs,
		RunE: executeInstallCompletion,
	}

	installCompletionCmd.Flags().String("shell", "", "Specify shell type (bash, zsh, fish, powershell)")
	installCompletionCmd.Flags().Bool("force", false, "Force overwrite existing completion files")

	return installCompletionCmd
}

// activation tells the user how to load the installed script.
var activation = map[string]string{
	"bash":       "Add 'source %s' to ~/.bashrc",
	"zsh":        "Add 'fpath=(%s $fpath)' before compinit in ~/.zshrc",
	"fish":       "Fish loads %s automatically in new shells",
	"powershell": "Add '. %s' to your PowerShell profile",
}

func detectShell() (string, error) {
	shellEnv := os.Getenv("SHELL")
	if shellEnv == "" {
		// On Windows, we may not have $SHELL
		if os.Getenv("PSModulePath") != "" {
			return "powershell", nil
		}
		return "", fmt.Errorf("could not detect shell. Please specify with --shell flag")
	}
	for _, name := range []string{"bash", "zsh", "fish"} {
		if strings.Contains(shellEnv, name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unsupported shell: %s. Please specify shell with --shell flag", shellEnv)
}

func completionScript(root *cobra.Command, shellType string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch shellType {
	case "bash":
		err = root.GenBashCompletion(&buf)
	case "zsh":
		err = root.GenZshCompletion(&buf)
	case "fish":
		err = root.GenFishCompletion(&buf, true)
	case "powershell":
		err = root.GenPowerShellCompletion(&buf)
	default:
		return nil, fmt.Errorf("unsupported shell type: %s", shellType)
	}
	if err != nil {
		return nil, fmt.Errorf("error generating %s completion: %w", shellType, err)
	}
	return buf.Bytes(), nil
}

// completionPath returns the user-scoped location of the completion file,
// or the system bash directory when MG_SETUP_COMPLETION_SCOPE=system and it
// is writable.
func completionPath(homeDir, shellType string) (string, error) {
	var dir, file string
	switch shellType {
	case "bash":
		dir, file = filepath.Join(homeDir, ".bash_completion.d"), "mg-setup.bash"
		systemDir := "/etc/bash_completion.d"
		if os.Getenv("MG_SETUP_COMPLETION_SCOPE") == "system" {
			if _, err := os.Stat(systemDir); err == nil && dirWritable(systemDir) {
				return filepath.Join(systemDir, file), nil
			}
		}
	case "zsh":
		dir, file = filepath.Join(homeDir, ".zsh", "completion"), "_mg-setup"
	case "fish":
		dir, file = filepath.Join(homeDir, ".config", "fish", "completions"), "mg-setup.fish"
	case "powershell":
		dir, file = filepath.Join(homeDir, "Documents", "WindowsPowerShell"), "mg-setup-completion.ps1"
	default:
		return "", fmt.Errorf("unsupported shell type: %s", shellType)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create directory %s: %v", dir, err)
	}
	return filepath.Join(dir, file), nil
}

// executeInstallCompletion handles installation of shell completion scripts
func executeInstallCompletion(cmd *cobra.Command, args []string) error {
	shellType, err := cmd.Flags().GetString("shell")
	if err != nil {
		return err
	}
	userForce, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if shellType == "" {
		if shellType, err = detectShell(); err != nil {
			return err
		}
	}

	script, err := completionScript(cmd.Root(), shellType)
	if err != nil {
		return err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %v", err)
	}
	targetPath, err := completionPath(homeDir, shellType)
	if err != nil {
		return err
	}

	if _, err := os.Stat(targetPath); err == nil && !userForce {
		return fmt.Errorf("completion file already exists at %s. Use --force to overwrite", targetPath)
	}

	if err := os.WriteFile(targetPath, script, 0600); err != nil {
		return fmt.Errorf("could not write completion file: %v", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Shell completion installed for %s at %s\n", shellType, targetPath)
	hintTarget := targetPath
	if shellType == "zsh" {
		hintTarget = filepath.Dir(targetPath)
	}
	fmt.Fprintf(out, activation[shellType]+"\n", hintTarget)

	return nil
}

// dirWritable checks if the specified directory is writable by attempting to create and remove a temporary file.
func dirWritable(p string) bool {
	tf, err := os.CreateTemp(p, ".probe-*")
	if err != nil {
		return false
	}
	tf.Close()
	_ = os.Remove(tf.Name())
	return true
}
