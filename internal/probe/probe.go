// Package probe runs the runtime health checks of a MegaGuards checkout:
// OpenCL device access, the core junit suite, the polyhedral library,
// clinfo, benchmark requirements and OpenCL platform detection. Every check
// goes through a shell.Executor so tests can replace the processes.
package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/megaguards/mg-setup/internal/config"
	"github.com/megaguards/mg-setup/internal/statestore"
	"github.com/megaguards/mg-setup/internal/utils/retry"
	"github.com/megaguards/mg-setup/internal/utils/shell"
)

// Device is an OpenCL device type.
type Device string

const (
	CPU Device = "CPU"
	GPU Device = "GPU"
)

// Env vars holding the OpenCL platform index of each device type.
const (
	EnvOpenCLCPUPlatform = "MG_OPENCL_CPU_PLATFORM"
	EnvOpenCLGPUPlatform = "MG_OPENCL_GPU_PLATFORM"
)

const (
	runtimeProject = "edu.uci.megaguards"
	runtimeMain    = "edu.uci.megaguards.shell.MGMain"
)

// Prober runs health checks against the checkout at Config.RootDir.
type Prober struct {
	Config *config.ProvisioningConfig
	Store  *statestore.Store
	Exec   shell.Executor
	// Attempts bounds the retried checks; each retry is immediate.
	Attempts int
	// Verbose forwards command output to the log as it arrives.
	Verbose bool
	// MMDir holds the OpenCL matrix multiplication benchmark used for
	// platform detection.
	MMDir     string
	LookupEnv func(string) (string, bool)
}

// New returns a prober for cfg that records detected values through store.
func New(cfg *config.ProvisioningConfig, store *statestore.Store) *Prober {
	attempts := cfg.ProbeAttempts
	if attempts <= 0 {
		attempts = retry.DefaultAttempts
	}
	return &Prober{
		Config:    cfg,
		Store:     store,
		Exec:      shell.Default,
		Attempts:  attempts,
		MMDir:     filepath.Join(cfg.BenchmarksDir, "benchmarks", "opencl", "mm"),
		LookupEnv: os.LookupEnv,
	}
}

func (p *Prober) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Config.CommandTimeout > 0 {
		return context.WithTimeout(ctx, p.Config.CommandTimeout)
	}
	return ctx, func() {}
}

func (p *Prober) run(ctx context.Context, argv []string, cwd string) (shell.Result, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.Exec.Run(ctx, argv, shell.Options{Cwd: cwd, Tee: p.Verbose})
}

// runChecked runs argv once and fails on a non-zero exit, returning standard
// output.
func (p *Prober) runChecked(ctx context.Context, argv []string, cwd string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return shell.ExecCmd(ctx, p.Exec, argv, shell.Options{Cwd: cwd, Tee: p.Verbose})
}

// runUntilOK runs argv until it exits 0 or the attempts are used up and
// returns the last result.
func (p *Prober) runUntilOK(ctx context.Context, argv []string, cwd, what string, before func()) (shell.Result, error) {
	var last shell.Result
	_, err := retry.New(p.Attempts, what).Do(func(int) (bool, error) {
		if before != nil {
			before()
		}
		res, err := p.run(ctx, argv, cwd)
		if err != nil {
			return false, err
		}
		last = res
		return res.OK(), nil
	})
	return last, err
}

func (p *Prober) lookupEnv(name string) (string, bool) {
	if p.LookupEnv == nil {
		return "", false
	}
	return p.LookupEnv(name)
}

func (p *Prober) javaBin() string {
	if home, ok := p.lookupEnv("JAVA_HOME"); ok && home != "" {
		return filepath.Join(home, "bin", "java")
	}
	return "java"
}

// runInternal runs one of the runtime's internal commands (polyhedral-test,
// clinfo-json) on the runtime classpath and returns its standard output.
func (p *Prober) runInternal(ctx context.Context, command string) (string, error) {
	out, err := p.runChecked(ctx, []string{"mx", "classpath", runtimeProject}, p.Config.RootDir)
	if err != nil {
		return "", err
	}
	cp := lastLine(out)
	if cp == "" {
		return "", fmt.Errorf("mx classpath printed no classpath")
	}

	argv := []string{p.javaBin(), "-cp", cp, runtimeMain, command}
	res, err := p.runUntilOK(ctx, argv, p.Config.RootDir, command, nil)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
