package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/megaguards/mg-setup/internal/config/validate"
	"github.com/megaguards/mg-setup/internal/digest"
	"github.com/megaguards/mg-setup/internal/statestore"
	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/megaguards/mg-setup/internal/utils/security"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPackages are the host packages the runtime build needs.
var DefaultSystemPackages = []string{
	"build-essential",
	"git",
	"wget",
	"curl",
	"ocl-icd-opencl-dev",
	"clinfo",
}

// GlobalConfig holds tool-level settings read from the config file.
type GlobalConfig struct {
	RootDir       string `yaml:"root_dir" json:"root_dir"`                                 // Workspace root; every relative path below hangs off it (default: .)
	LibDir        string `yaml:"lib_dir,omitempty" json:"lib_dir,omitempty"`               // Native libraries (default: <root>/lib)
	DatasetDir    string `yaml:"dataset_dir,omitempty" json:"dataset_dir,omitempty"`       // Benchmark and test datasets (default: <root>/dataset)
	EnvFile       string `yaml:"env_file,omitempty" json:"env_file,omitempty"`             // Environment file (default: <root>/mx.megaguards/env)
	BenchmarksDir string `yaml:"benchmarks_dir,omitempty" json:"benchmarks_dir,omitempty"` // Benchmark suite checkout
	BuildDir      string `yaml:"build_dir,omitempty" json:"build_dir,omitempty"`           // Value recorded as MG_BUILD_DIR (default: <root>/mxbuild)
	Platform      string `yaml:"platform,omitempty" json:"platform,omitempty"`             // Registry variant to use; empty means the running OS
	HashAlgorithm string `yaml:"hash_algorithm" json:"hash_algorithm"`                     // sha1, sha256 or blake3
	UpsertMode    string `yaml:"upsert_mode" json:"upsert_mode"`                           // replace or legacy

	DownloadTimeout string `yaml:"download_timeout" json:"download_timeout"` // Per-source download limit, 0 for none
	CommandTimeout  string `yaml:"command_timeout" json:"command_timeout"`   // Limit for external commands, 0 for none

	Registry       RegistryConfig `yaml:"registry" json:"registry"`
	Probe          ProbeConfig    `yaml:"probe" json:"probe"`
	SystemPackages []string       `yaml:"system_packages" json:"system_packages"`
	Logging        LoggingConfig  `yaml:"logging" json:"logging"`
}

// RegistryConfig selects the artifact registry and its optional signature.
type RegistryConfig struct {
	File      string `yaml:"file,omitempty" json:"file,omitempty"`           // Registry YAML; empty uses the built-in table
	Signature string `yaml:"signature,omitempty" json:"signature,omitempty"` // Detached armored OpenPGP signature of File
	Keyring   string `yaml:"keyring,omitempty" json:"keyring,omitempty"`     // Armored public keyring used to check Signature
}

// ProbeConfig tunes the runtime health probes.
type ProbeConfig struct {
	Attempts     int `yaml:"attempts" json:"attempts"`           // Tries per device/runtime check (default: 3)
	MaxPlatforms int `yaml:"max_platforms" json:"max_platforms"` // OpenCL platform indices scanned (default: 5)
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info, warn or error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
	once           sync.Once
)

// SetGlobal sets the global config instance (call once at startup in main.go)
func SetGlobal(config *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = config
}

// Global returns the global config instance
func Global() *GlobalConfig {
	once.Do(func() {
		globalMutex.Lock()
		defer globalMutex.Unlock()
		if globalInstance == nil {
			globalInstance = DefaultGlobalConfig()
		}
	})

	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalInstance
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		RootDir:         ".",
		HashAlgorithm:   digest.SHA1,
		UpsertMode:      string(statestore.UpsertReplace),
		DownloadTimeout: "0s",
		CommandTimeout:  "0s",
		Probe: ProbeConfig{
			Attempts:     3,
			MaxPlatforms: 5,
		},
		SystemPackages: append([]string(nil), DefaultSystemPackages...),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadGlobalConfig loads configuration from configPath over the defaults. An
// empty or missing path yields the defaults.
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	config := DefaultGlobalConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			logger.Logger().Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}

	if err := validate.ValidateConfigYAML(data); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Logger().Debugf("loaded config %s", configPath)
	return config, nil
}

func (gc *GlobalConfig) validateSchema() error {
	jsonData, err := json.Marshal(gc)
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// SaveGlobalConfig writes the configuration as plain YAML.
func (gc *GlobalConfig) SaveGlobalConfig(configPath string) error {
	if err := ensureParent(configPath); err != nil {
		return err
	}
	if err := gc.validateSchema(); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	data, err := yaml.Marshal(gc)
	if err != nil {
		return fmt.Errorf("marshaling config to YAML: %w", err)
	}

	if err := security.SafeWriteFile(configPath, data, 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// SaveGlobalConfigWithComments writes the configuration with a comment on
// every setting. Used by "config init".
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := ensureParent(configPath); err != nil {
		return err
	}
	if err := gc.validateSchema(); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if err := security.SafeWriteFile(configPath, []byte(gc.renderCommentedYAML()), 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func ensureParent(configPath string) error {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return nil
}

func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# mg-setup - Global Configuration\n")
	b.WriteString("# Where MegaGuards artifacts are installed and how they are verified.\n\n")

	b.WriteString("# Workspace layout\n")
	fmt.Fprintf(&b, "root_dir: %q\n", gc.RootDir)
	b.WriteString("# MegaGuards checkout; lib/, dataset/ and mx.megaguards/env live below it (default: .)\n\n")

	writeOptionalPath(&b, "lib_dir", gc.LibDir, "Native libraries and lib/downloads archives (default: <root>/lib)")
	writeOptionalPath(&b, "dataset_dir", gc.DatasetDir, "Rodinia datasets (default: <root>/dataset)")
	writeOptionalPath(&b, "env_file", gc.EnvFile, "Environment file read by mx (default: <root>/mx.megaguards/env)")
	writeOptionalPath(&b, "benchmarks_dir", gc.BenchmarksDir, "Benchmark suite submodule (default: <root>/megaguards/megaguards-benchmarks-suite)")
	writeOptionalPath(&b, "build_dir", gc.BuildDir, "Recorded as MG_BUILD_DIR (default: <root>/mxbuild)")

	b.WriteString("# Artifact selection and verification\n")
	if gc.Platform != "" {
		fmt.Fprintf(&b, "platform: %q\n", gc.Platform)
	} else {
		b.WriteString("# platform: \"linux\"\n")
	}
	b.WriteString("# Registry variant to install (linux, darwin, windows); empty uses the running OS\n\n")

	fmt.Fprintf(&b, "hash_algorithm: %q\n", gc.HashAlgorithm)
	b.WriteString("# Digest of registry hashes: sha1 (default), sha256 or blake3\n\n")

	fmt.Fprintf(&b, "upsert_mode: %q\n", gc.UpsertMode)
	b.WriteString("# How a changed value is recorded in the environment file\n")
	b.WriteString("# - replace: comment out the old line and append the new one (default)\n")
	b.WriteString("# - legacy:  comment out the old line only\n\n")

	b.WriteString("# Timeouts (Go durations such as 90s or 10m; 0s disables)\n")
	fmt.Fprintf(&b, "download_timeout: %q\n", gc.DownloadTimeout)
	fmt.Fprintf(&b, "command_timeout: %q\n\n", gc.CommandTimeout)

	b.WriteString("# Artifact registry\n")
	b.WriteString("registry:\n")
	if gc.Registry.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Registry.File)
	} else {
		b.WriteString("  # file: \"registry.yml\"\n")
	}
	b.WriteString("  # Registry YAML to use instead of the built-in table\n")
	if gc.Registry.Signature != "" {
		fmt.Fprintf(&b, "  signature: %q\n", gc.Registry.Signature)
		fmt.Fprintf(&b, "  keyring: %q\n", gc.Registry.Keyring)
	} else {
		b.WriteString("  # signature: \"registry.yml.asc\"\n")
		b.WriteString("  # keyring: \"trusted.asc\"\n")
	}
	b.WriteString("  # Detached OpenPGP signature of file, checked against keyring when set\n\n")

	b.WriteString("# Runtime health probes\n")
	b.WriteString("probe:\n")
	fmt.Fprintf(&b, "  attempts: %d\n", gc.Probe.Attempts)
	b.WriteString("  # Tries for device and junit checks before reporting failure (1-10)\n")
	fmt.Fprintf(&b, "  max_platforms: %d\n", gc.Probe.MaxPlatforms)
	b.WriteString("  # OpenCL platform indices scanned by --detect-ocl-platform\n\n")

	b.WriteString("# Host packages installed by 'mg-setup system-deps'\n")
	b.WriteString("system_packages:\n")
	for _, p := range gc.SystemPackages {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	b.WriteString("\n")

	b.WriteString("# Logging configuration\n")
	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # debug, info (default), warn or error\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
		b.WriteString("  # Append logs to this file as JSON records in addition to stderr\n")
	}

	return b.String()
}

func writeOptionalPath(b *strings.Builder, key, value, comment string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %q\n", key, value)
	} else {
		fmt.Fprintf(b, "# %s: \"\"\n", key)
	}
	fmt.Fprintf(b, "# %s\n\n", comment)
}

// Validate checks the configuration for consistency. It does not set
// defaults; DefaultGlobalConfig does.
func (gc *GlobalConfig) Validate() error {
	if strings.TrimSpace(gc.RootDir) == "" {
		return fmt.Errorf("root_dir cannot be empty")
	}
	if _, err := digest.New(gc.HashAlgorithm); err != nil {
		return err
	}
	if _, err := statestore.ParseUpsertMode(gc.UpsertMode); err != nil {
		return err
	}
	if _, err := parseTimeout("download_timeout", gc.DownloadTimeout); err != nil {
		return err
	}
	if _, err := parseTimeout("command_timeout", gc.CommandTimeout); err != nil {
		return err
	}
	if gc.Probe.Attempts <= 0 {
		return fmt.Errorf("probe.attempts must be greater than 0, got %d", gc.Probe.Attempts)
	}
	if gc.Probe.MaxPlatforms <= 0 {
		return fmt.Errorf("probe.max_platforms must be greater than 0, got %d", gc.Probe.MaxPlatforms)
	}
	if (gc.Registry.Signature == "") != (gc.Registry.Keyring == "") {
		return fmt.Errorf("registry.signature and registry.keyring must be set together")
	}
	if gc.Registry.Signature != "" && gc.Registry.File == "" {
		return fmt.Errorf("registry.signature requires registry.file")
	}

	switch gc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", gc.Logging.Level)
	}
	gc.Logging.File = strings.TrimSpace(gc.Logging.File)

	return security.ValidateStructStrings(gc, security.DefaultLimits())
}

func parseTimeout(name, value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative, got %s", name, value)
	}
	return d, nil
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"mg-setup.yml",
		".mg-setup.yml",
		"mg-setup.yaml",
		".mg-setup.yaml",
	}

	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".mg-setup", "config.yml"),
			filepath.Join(homeDir, ".mg-setup", "config.yaml"),
			filepath.Join(homeDir, ".config", "mg-setup", "config.yml"),
			filepath.Join(homeDir, ".config", "mg-setup", "config.yaml"),
		)
	}

	paths = append(paths,
		"/etc/mg-setup/config.yml",
		"/etc/mg-setup/config.yaml",
	)

	return paths
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func LogLevel() string {
	return Global().Logging.Level
}

func IsDebugMode() bool {
	return Global().Logging.Level == "debug"
}
