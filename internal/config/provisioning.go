package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"
)

// ProvisioningConfig is the resolved, absolute layout and policy handed to
// the provisioning engine and the probes. Tests build one over a temporary
// directory with NewProvisioningConfig.
type ProvisioningConfig struct {
	RootDir       string
	LibDir        string
	DownloadsDir  string
	DatasetDir    string
	EnvFile       string
	BenchmarksDir string
	BuildDir      string

	RegistryFile      string
	RegistrySignature string
	RegistryKeyring   string

	Platform      string
	HashAlgorithm string
	UpsertMode    string

	DownloadTimeout time.Duration
	CommandTimeout  time.Duration

	ProbeAttempts     int
	ProbeMaxPlatforms int
	SystemPackages    []string
}

// NewProvisioningConfig returns the default layout below root for the
// running OS.
func NewProvisioningConfig(root string) *ProvisioningConfig {
	root = filepath.Clean(root)
	libDir := filepath.Join(root, "lib")
	return &ProvisioningConfig{
		RootDir:           root,
		LibDir:            libDir,
		DownloadsDir:      filepath.Join(libDir, "downloads"),
		DatasetDir:        filepath.Join(root, "dataset"),
		EnvFile:           filepath.Join(root, "mx.megaguards", "env"),
		BenchmarksDir:     filepath.Join(root, "megaguards", "megaguards-benchmarks-suite"),
		BuildDir:          filepath.Join(root, "mxbuild"),
		Platform:          runtime.GOOS,
		HashAlgorithm:     "sha1",
		UpsertMode:        "replace",
		ProbeAttempts:     3,
		ProbeMaxPlatforms: 5,
		SystemPackages:    append([]string(nil), DefaultSystemPackages...),
	}
}

// Provisioning resolves gc into absolute paths. Empty directory settings
// fall back to the default layout below root_dir; relative ones are taken
// relative to root_dir.
func (gc *GlobalConfig) Provisioning() (*ProvisioningConfig, error) {
	root, err := filepath.Abs(gc.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	pc := NewProvisioningConfig(root)
	resolve := func(dst *string, value string) {
		if value == "" {
			return
		}
		if filepath.IsAbs(value) {
			*dst = filepath.Clean(value)
			return
		}
		*dst = filepath.Join(root, value)
	}

	resolve(&pc.LibDir, gc.LibDir)
	pc.DownloadsDir = filepath.Join(pc.LibDir, "downloads")
	resolve(&pc.DatasetDir, gc.DatasetDir)
	resolve(&pc.EnvFile, gc.EnvFile)
	resolve(&pc.BenchmarksDir, gc.BenchmarksDir)
	resolve(&pc.BuildDir, gc.BuildDir)
	resolve(&pc.RegistryFile, gc.Registry.File)
	resolve(&pc.RegistrySignature, gc.Registry.Signature)
	resolve(&pc.RegistryKeyring, gc.Registry.Keyring)

	if gc.Platform != "" {
		pc.Platform = gc.Platform
	}
	if gc.HashAlgorithm != "" {
		pc.HashAlgorithm = gc.HashAlgorithm
	}
	if gc.UpsertMode != "" {
		pc.UpsertMode = gc.UpsertMode
	}
	if pc.DownloadTimeout, err = parseTimeout("download_timeout", gc.DownloadTimeout); err != nil {
		return nil, err
	}
	if pc.CommandTimeout, err = parseTimeout("command_timeout", gc.CommandTimeout); err != nil {
		return nil, err
	}
	if gc.Probe.Attempts > 0 {
		pc.ProbeAttempts = gc.Probe.Attempts
	}
	if gc.Probe.MaxPlatforms > 0 {
		pc.ProbeMaxPlatforms = gc.Probe.MaxPlatforms
	}
	if gc.SystemPackages != nil {
		pc.SystemPackages = append([]string(nil), gc.SystemPackages...)
	}
	return pc, nil
}

// LibPath is where an installed library file lives.
func (pc *ProvisioningConfig) LibPath(installName, suffix string) string {
	return filepath.Join(pc.LibDir, installName+suffix)
}

// DownloadPath is where the archive of a compressed artifact is kept.
func (pc *ProvisioningConfig) DownloadPath(name, format string) string {
	if format == "" {
		format = "zip"
	}
	return filepath.Join(pc.DownloadsDir, name+"."+format)
}

// ResolvePath makes a registry path absolute relative to RootDir.
func (pc *ProvisioningConfig) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(pc.RootDir, p)
}
