package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/megaguards/mg-setup/internal/provision"
	"github.com/megaguards/mg-setup/internal/utils/logger"
)

const openclHelp = `MegaGuards could not locate a valid OpenCL device of type %[1]s. Please check the following:
    * %[1]s supports double precision operation (check %[1]s spec and query 'clinfo')
    * %[1]s driver that includes OpenCL library (check '*.icd' files in '/etc/OpenCL/vendor/')`

// CheckDevice runs the device test program against device until it exits 0
// and then looks for the device in the reported execution target.
func (p *Prober) CheckDevice(ctx context.Context, device Device) (bool, error) {
	argv := []string{
		"mx", "python", filepath.Join(p.Config.RootDir, "tests", "check_mg.py"),
		"--mg-target=" + strings.ToLower(string(device)),
		"--mg-log=eyxd",
		"--mg-target-threshold=1",
	}
	res, err := p.runUntilOK(ctx, argv, p.Config.RootDir, "Execution", func() {
		logger.Progress("Testing OpenCL device %s accessibility", device)
	})
	if err != nil {
		return false, fmt.Errorf("testing OpenCL device %s: %w", device, err)
	}

	target := regexp.MustCompile(`(?m)Execution Target:.+` + regexp.QuoteMeta(string(device)))
	if !target.MatchString(res.Stdout) {
		logger.Fail(openclHelp, device)
		return false, nil
	}
	logger.OK("OpenCL device %s has been detected!", device)
	return true, nil
}

// JUnitStatus runs the core junit suite with retries.
func (p *Prober) JUnitStatus(ctx context.Context) (bool, error) {
	res, err := p.runUntilOK(ctx, []string{"mx", "junit-mg-core"}, p.Config.RootDir, "Test", func() {
		logger.Progress("Performing MegaGuards (core) junit tests.. (note: run 'mx junit-mg' for complete MegaGuards junit tests)")
	})
	if err != nil {
		return false, fmt.Errorf("running junit tests: %w", err)
	}
	if !res.OK() {
		logger.Warn("MegaGuards core junit tests encountered some errors.")
		return false, nil
	}
	logger.OK("MegaGuards core junit tests")
	return true, nil
}

const (
	polyhedralSuccess = "Polyhedral test is operational"
	polyhedralFailure = "Polyhedral test FAILED!"
)

// PolyhedralCheck runs the runtime's polyhedral self test and reports the
// first verdict line it prints.
func (p *Prober) PolyhedralCheck(ctx context.Context) (bool, error) {
	out, err := p.runInternal(ctx, "polyhedral-test")
	if err != nil {
		return false, fmt.Errorf("running polyhedral test: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, polyhedralSuccess) {
			logger.OK(polyhedralSuccess)
			return true, nil
		}
		if strings.Contains(line, polyhedralFailure) {
			logger.Fail(polyhedralFailure)
			return false, nil
		}
	}
	logger.Logger().Debugf("polyhedral test printed no verdict:\n%s", out)
	return false, nil
}

// BenchmarkSuite makes sure the benchmark suite submodule is checked out.
// It has the shape of a provision.Prerequisite.
func (p *Prober) BenchmarkSuite(ctx context.Context, req provision.Request) (bool, error) {
	_, err := os.Stat(filepath.Join(p.Config.BenchmarksDir, ".git"))
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("checking benchmark suite: %w", err)
	}
	if req.CheckOnly {
		return exists, nil
	}
	if exists && !req.Force {
		return true, nil
	}

	logger.Progress("Importing MegaGuards benchmarks suite")
	if _, err := p.runChecked(ctx, []string{"git", "submodule", "update"}, p.Config.RootDir); err != nil {
		return false, fmt.Errorf("updating benchmark suite: %w", err)
	}
	return true, nil
}
