package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/megaguards/mg-setup/internal/config"
	"github.com/megaguards/mg-setup/internal/probe"
	"github.com/megaguards/mg-setup/internal/provision"
	"github.com/megaguards/mg-setup/internal/registry"
	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/megaguards/mg-setup/internal/utils/shell"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Registry names of the artifacts the setup steps provision.
const (
	artifactPolyhedral       = "athenapet"
	artifactTestDataset      = "rodinia-test-dataset"
	artifactBenchmarkDataset = "rodinia-benchmark-dataset"
)

const (
	envHome     = "MG_HOME"
	envBuildDir = "MG_BUILD_DIR"
)

// newExecutor returns the executor the probes run commands with.
var newExecutor = func() shell.Executor { return shell.Default }

type setupOptions struct {
	CheckOnly         bool
	Force             bool
	Verbose           bool
	Init              bool
	InitAll           bool
	PolyhedralLD      bool
	CheckPolyhedral   bool
	DatasetTest       bool
	DatasetBenchmark  bool
	BenchmarkSuite    bool
	Clinfo            bool
	TestGPU           bool
	TestCPU           bool
	CheckRequirements bool
	DetectPlatform    bool
	Artifacts         []string
}

func addSetupFlags(cmd *cobra.Command, opts *setupOptions) {
	f := cmd.Flags()
	f.BoolVarP(&opts.CheckOnly, "check-only", "c", false, "Check without making any change")
	f.BoolVarP(&opts.Force, "force", "f", false, "Force the action and ignore local files")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "Print all suppressed output")
	f.BoolVarP(&opts.Init, "init", "i", false, "Setup MegaGuards")
	f.BoolVar(&opts.InitAll, "init-all", false, "Setup MegaGuards (including benchmark suite)")
	f.BoolVar(&opts.PolyhedralLD, "polyhedral-ld", false, "Setup Polyhedral analysis binary library (AthenaPet)")
	f.BoolVar(&opts.CheckPolyhedral, "check-polyhedral", false, "Test Polyhedral analysis library")
	f.BoolVar(&opts.DatasetTest, "dataset-test", false, "Download junit test dataset")
	f.BoolVar(&opts.DatasetBenchmark, "dataset-benchmark", false, "Download benchmark dataset")
	f.BoolVar(&opts.BenchmarkSuite, "benchmark-suite", false, "Download benchmark suite")
	f.BoolVar(&opts.Clinfo, "clinfo", false, "Print OpenCL devices information")
	f.BoolVarP(&opts.TestGPU, "test-gpu", "t", false, "Test GPU OpenCL device")
	f.BoolVar(&opts.TestCPU, "test-cpu", false, "Test CPU OpenCL device")
	f.BoolVar(&opts.CheckRequirements, "check-requirements", false, "Test benchmark requirements")
	f.BoolVar(&opts.DetectPlatform, "detect-ocl-platform", false, "Detect OpenCL devices platform index")
	f.StringArrayVar(&opts.Artifacts, "artifact", nil, "Provision a registry artifact by name (repeatable)")
}

// createSetupCommand creates the setup subcommand
func createSetupCommand() *cobra.Command {
	opts := &setupOptions{}
	setupCmd := &cobra.Command{
		Use:   "setup [flags]",
		Short: "Provision libraries and datasets and run the health checks",
		Long: `Provision the MegaGuards native libraries and datasets and run the
runtime health checks selected by the flags.

--init runs the library, test dataset, polyhedral, clinfo, OpenCL device
and junit steps. --init-all adds OpenCL platform detection, the benchmark
suite and the benchmark dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeSetup(cmd, opts)
		},
	}
	addSetupFlags(setupCmd, opts)
	return setupCmd
}

// session wires the provisioning engine and the probes for one command.
type session struct {
	cfg    *config.ProvisioningConfig
	engine *provision.Engine
	prober *probe.Prober
	log    *zap.SugaredLogger
}

func newSession(verbose bool) (*session, error) {
	cfg, err := config.Global().Provisioning()
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(cfg.RegistryFile, cfg.RegistrySignature, cfg.RegistryKeyring)
	if err != nil {
		return nil, fmt.Errorf("loading artifact registry: %w", err)
	}

	engine, err := provision.New(cfg, reg)
	if err != nil {
		return nil, err
	}

	prober := probe.New(cfg, engine.Store)
	prober.Exec = newExecutor()
	prober.Verbose = verbose
	engine.Prerequisites[registry.StepBenchmarkSuite] = prober.BenchmarkSuite

	if verbose {
		logger.SetLogLevel("debug")
	}

	return &session{
		cfg:    cfg,
		engine: engine,
		prober: prober,
		log:    logger.With("run", uuid.NewString()),
	}, nil
}

// executeSetup runs the selected steps in a fixed order and fails when any
// of them failed. Every step runs even after an earlier failure.
func executeSetup(cmd *cobra.Command, opts *setupOptions) error {
	s, err := newSession(opts.Verbose)
	if err != nil {
		return err
	}
	failures := s.runSetup(cmd.Context(), opts)
	if failures > 0 {
		return fmt.Errorf("%d setup step(s) failed", failures)
	}
	return nil
}

// runSetup returns the number of failed steps.
func (s *session) runSetup(ctx context.Context, opts *setupOptions) int {
	if ctx == nil {
		ctx = context.Background()
	}
	req := provision.Request{Force: opts.Force, CheckOnly: opts.CheckOnly}
	doInit := opts.Init || opts.InitAll
	failures := 0

	// check reports a step that returns a verdict and an error.
	check := func(title string, ok bool, err error) {
		if err != nil {
			s.log.Errorf("%s: %v", title, err)
			ok = false
		}
		if !ok {
			failures++
		}
	}
	// step additionally prints a status line for the step.
	step := func(title string, ok bool, err error) {
		check(title, ok, err)
		logger.Status(ok && err == nil, title)
	}
	ensure := func(title, artifact string) {
		r := req
		r.Artifact = artifact
		ok, err := s.engine.Ensure(ctx, r)
		step(title, ok, err)
	}

	if len(s.engine.Registry.Supported(s.engine.Platform)) == 0 {
		logger.Fail("MegaGuards, currently, only supports Linux x86 64-Bit")
	}

	for _, env := range []struct{ name, value string }{
		{envHome, s.cfg.RootDir},
		{envBuildDir, s.cfg.BuildDir},
	} {
		ok, err := s.engine.EnsureEnvPath(ctx, env.name, env.value, req)
		if err == nil && !ok {
			logger.Fail("%s is neither set nor recorded in %s", env.name, s.cfg.EnvFile)
		}
		check("Record "+env.name, ok, err)
	}

	if opts.PolyhedralLD || doInit {
		ensure("Setup Polyhedral analysis binary library (AthenaPet)", artifactPolyhedral)
	}
	if opts.CheckPolyhedral || doInit {
		ok, err := s.prober.PolyhedralCheck(ctx)
		check("Polyhedral test", ok, err)
	}
	if opts.DatasetTest || doInit {
		ensure("Download junit test dataset", artifactTestDataset)
	}
	if opts.Clinfo || doInit {
		report, err := s.prober.Clinfo(ctx)
		check("OpenCL devices", err == nil && report.Total > 0, err)
	}
	if opts.TestGPU || doInit {
		ok, err := s.prober.CheckDevice(ctx, probe.GPU)
		check("OpenCL GPU device", ok, err)
	}
	if opts.TestCPU || doInit {
		ok, err := s.prober.CheckDevice(ctx, probe.CPU)
		check("OpenCL CPU device", ok, err)
	}
	if opts.DetectPlatform || opts.InitAll {
		ok, err := s.prober.DetectPlatforms(ctx)
		check("OpenCL platform detection", ok, err)
	}
	if opts.CheckRequirements {
		check("Benchmark requirements", probe.RequirementsMet(s.prober.CheckRequirements(ctx)), nil)
	}
	if doInit {
		ok, err := s.junit(ctx)
		check("Junit tests", ok, err)
	}
	if opts.BenchmarkSuite || opts.InitAll {
		ok, err := s.prober.BenchmarkSuite(ctx, req)
		step("Download benchmark suite", ok, err)
	}
	if opts.DatasetBenchmark || opts.InitAll {
		ensure("Download benchmark dataset", artifactBenchmarkDataset)
	}
	for _, name := range opts.Artifacts {
		ensure("Provision "+name, name)
	}

	return failures
}

// junit runs the core junit suite once the checkout has everything the
// tests load.
func (s *session) junit(ctx context.Context) (bool, error) {
	checkOnly := provision.Request{CheckOnly: true}
	for _, name := range []string{envHome, envBuildDir} {
		known, err := s.engine.EnsureEnvPath(ctx, name, "", checkOnly)
		if err != nil {
			return false, err
		}
		if !known {
			logger.Fail("%s is not set; run setup without --check-only first", name)
			return false, nil
		}
	}
	for _, artifact := range []string{artifactPolyhedral, artifactTestDataset} {
		r := checkOnly
		r.Artifact = artifact
		ok, err := s.engine.Ensure(ctx, r)
		if err != nil {
			return false, err
		}
		if !ok {
			logger.Fail("%s is not installed, skipping junit tests", artifact)
			return false, nil
		}
	}
	return s.prober.JUnitStatus(ctx)
}
