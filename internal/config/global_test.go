package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultGlobalConfig(t *testing.T) {
	gc := DefaultGlobalConfig()
	if err := gc.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if gc.HashAlgorithm != "sha1" || gc.UpsertMode != "replace" || gc.Probe.Attempts != 3 {
		t.Errorf("unexpected defaults: %+v", gc)
	}
	if len(gc.SystemPackages) != len(DefaultSystemPackages) {
		t.Errorf("expected default system packages, got %v", gc.SystemPackages)
	}
	gc.SystemPackages[0] = "changed"
	if DefaultSystemPackages[0] == "changed" {
		t.Error("defaults must not share the package slice")
	}
}

func TestLoadGlobalConfigMissingOrEmptyPath(t *testing.T) {
	for _, p := range []string{"", filepath.Join(t.TempDir(), "absent.yml")} {
		gc, err := LoadGlobalConfig(p)
		if err != nil {
			t.Fatalf("LoadGlobalConfig(%q) failed: %v", p, err)
		}
		if gc.RootDir != "." {
			t.Errorf("expected defaults, got root %q", gc.RootDir)
		}
	}
}

func TestLoadGlobalConfigYAML(t *testing.T) {
	path := writeConfig(t, "mg-setup.yml", `
root_dir: /opt/megaguards
hash_algorithm: blake3
upsert_mode: legacy
download_timeout: 10m
probe:
  attempts: 5
system_packages:
  - clinfo
logging:
  level: debug
`)

	gc, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("LoadGlobalConfig failed: %v", err)
	}
	if gc.RootDir != "/opt/megaguards" || gc.HashAlgorithm != "blake3" || gc.UpsertMode != "legacy" {
		t.Errorf("unexpected config: %+v", gc)
	}
	if gc.Probe.Attempts != 5 || gc.Probe.MaxPlatforms != 5 {
		t.Errorf("expected attempts override and default max_platforms, got %+v", gc.Probe)
	}
	if len(gc.SystemPackages) != 1 || gc.SystemPackages[0] != "clinfo" {
		t.Errorf("expected package list override, got %v", gc.SystemPackages)
	}
	if gc.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", gc.Logging.Level)
	}
}

func TestLoadGlobalConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unsupported extension", "config.json", `{}`, "unsupported config file format"},
		{"invalid yaml", "bad.yml", "root_dir: [", "parsing YAML config"},
		{"schema violation", "bad.yml", "hash_algorithm: md5\n", "schema validation failed"},
		{"unknown key", "bad.yml", "workers: 8\n", "schema validation failed"},
		{"bad duration", "bad.yml", "command_timeout: soon\n", "schema validation failed"},
		{"signature without keyring", "bad.yml", "registry:\n  file: r.yml\n  signature: r.yml.asc\n", "must be set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGlobalConfig(writeConfig(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadGlobalConfigRejectsSymlink(t *testing.T) {
	target := writeConfig(t, "real.yml", "root_dir: /tmp\n")
	link := filepath.Join(t.TempDir(), "mg-setup.yml")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGlobalConfig(link); err == nil {
		t.Error("expected symlinked config to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GlobalConfig)
		wantErr string
	}{
		{"valid", func(*GlobalConfig) {}, ""},
		{"empty root", func(gc *GlobalConfig) { gc.RootDir = " " }, "root_dir"},
		{"bad algorithm", func(gc *GlobalConfig) { gc.HashAlgorithm = "md5" }, "unsupported hash algorithm"},
		{"bad upsert", func(gc *GlobalConfig) { gc.UpsertMode = "merge" }, "unknown upsert mode"},
		{"negative timeout", func(gc *GlobalConfig) { gc.DownloadTimeout = "-5s" }, "cannot be negative"},
		{"zero attempts", func(gc *GlobalConfig) { gc.Probe.Attempts = 0 }, "probe.attempts"},
		{"signature without file", func(gc *GlobalConfig) { gc.Registry.Signature = "a"; gc.Registry.Keyring = "b" }, "requires registry.file"},
		{"bad level", func(gc *GlobalConfig) { gc.Logging.Level = "trace" }, "invalid log level"},
		{"control chars", func(gc *GlobalConfig) { gc.EnvFile = "/tmp/env\x00" }, "NUL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc := DefaultGlobalConfig()
			tt.mutate(gc)
			err := gc.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveGlobalConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	gc := DefaultGlobalConfig()
	gc.RootDir = "/srv/mg"
	gc.CommandTimeout = "90s"

	if err := gc.SaveGlobalConfig(path); err != nil {
		t.Fatalf("SaveGlobalConfig failed: %v", err)
	}
	loaded, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.RootDir != "/srv/mg" || loaded.CommandTimeout != "90s" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestSaveGlobalConfigWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mg-setup.yml")
	gc := DefaultGlobalConfig()
	gc.Registry = RegistryConfig{File: "registry.yml", Signature: "registry.yml.asc", Keyring: "trusted.asc"}
	gc.Logging.File = "mg-setup.log"

	if err := gc.SaveGlobalConfigWithComments(path); err != nil {
		t.Fatalf("SaveGlobalConfigWithComments failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"# mg-setup - Global Configuration", "hash_algorithm: \"sha1\"", "- ocl-icd-opencl-dev", "signature: \"registry.yml.asc\""} {
		if !strings.Contains(text, want) {
			t.Errorf("commented config missing %q", want)
		}
	}

	loaded, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("commented config should load back: %v", err)
	}
	if loaded.Registry.Keyring != "trusted.asc" || loaded.Logging.File != "mg-setup.log" {
		t.Errorf("unexpected reload: %+v", loaded)
	}

	if err := gc.SaveGlobalConfigWithComments(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestGetConfigPaths(t *testing.T) {
	paths := GetConfigPaths()
	if paths[0] != "mg-setup.yml" {
		t.Errorf("expected local config first, got %s", paths[0])
	}
	if paths[len(paths)-1] != "/etc/mg-setup/config.yaml" {
		t.Errorf("expected system config last, got %s", paths[len(paths)-1])
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if err := os.WriteFile(".mg-setup.yml", []byte("root_dir: .\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != ".mg-setup.yml" {
		t.Errorf("FindConfigFile() = %q", got)
	}
}

func TestParseTimeout(t *testing.T) {
	for in, want := range map[string]time.Duration{"": 0, "0": 0, "0s": 0, "90s": 90 * time.Second, "1h30m": 90 * time.Minute} {
		got, err := parseTimeout("t", in)
		if err != nil || got != want {
			t.Errorf("parseTimeout(%q) = %v %v, want %v", in, got, err, want)
		}
	}
}

func TestGlobalSingleton(t *testing.T) {
	custom := DefaultGlobalConfig()
	custom.Logging.Level = "debug"
	SetGlobal(custom)
	defer SetGlobal(DefaultGlobalConfig())

	if !IsDebugMode() || LogLevel() != "debug" {
		t.Error("expected global config to be replaced")
	}
}
