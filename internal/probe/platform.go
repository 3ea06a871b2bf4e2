package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// ErrPlatformNotFound is returned when no OpenCL platform index runs the
// matrix multiplication benchmark on the expected device.
var ErrPlatformNotFound = errors.New("OpenCL platform index not found")

func envForDevice(device Device) string {
	if device == GPU {
		return EnvOpenCLGPUPlatform
	}
	return EnvOpenCLCPUPlatform
}

// mentions reports whether out names the device, allowing for vendors that
// abbreviate the head or tail of the device name.
func mentions(out, name string) bool {
	if name == "" {
		return false
	}
	if strings.Contains(out, name) {
		return true
	}
	if len(name) > 5 && (strings.Contains(out, name[:5]) || strings.Contains(out, name[len(name)-5:])) {
		return true
	}
	return false
}

// DetectPlatformIndex tries the platform indexes below the configured limit
// and returns the first one on which the mm benchmark runs on name.
func (p *Prober) DetectPlatformIndex(ctx context.Context, device Device, name string) (int, error) {
	limit := p.Config.ProbeMaxPlatforms
	if limit <= 0 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		argv := []string{"./mm", "64", "-t", strings.ToLower(string(device)), "-d", strconv.Itoa(i)}
		res, err := p.run(ctx, argv, p.MMDir)
		if err != nil {
			if ctx.Err() != nil {
				return -1, ctx.Err()
			}
			logger.Logger().Debugf("%s: %v", strings.Join(argv, " "), err)
			continue
		}
		if res.OK() && mentions(res.Stdout, name) {
			logger.OK("%s OpenCL device platform index is %d", name, i)
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w for %s", ErrPlatformNotFound, name)
}

// DetectPlatforms finds and records the OpenCL platform index of the CPU and
// GPU devices. Indexes already present in the environment are kept.
func (p *Prober) DetectPlatforms(ctx context.Context) (bool, error) {
	pending := []Device{}
	for _, d := range []Device{CPU, GPU} {
		env := envForDevice(d)
		if v, ok := p.lookupEnv(env); ok {
			logger.Info("%s=%s already set in the \"env\" file", env, v)
			continue
		}
		pending = append(pending, d)
	}

	if _, err := os.Stat(filepath.Join(p.MMDir, "mm")); err != nil {
		if _, err := p.runChecked(ctx, []string{"make"}, p.MMDir); err != nil {
			return false, fmt.Errorf("building mm benchmark: %w", err)
		}
	}

	report, err := p.Clinfo(ctx)
	if err != nil {
		return false, err
	}
	if report.CPU() == "" || report.GPU() == "" {
		logger.Fail("Please fix this before running the benchmarks")
	}

	ok := true
	for _, d := range pending {
		name := report.CPU()
		if d == GPU {
			name = report.GPU()
		}
		idx, err := p.DetectPlatformIndex(ctx, d, name)
		if err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			logger.Fail("Unable to find the platform index for %s", name)
			ok = false
			continue
		}
		if _, err := p.Store.WriteVar(envForDevice(d), strconv.Itoa(idx)); err != nil {
			return false, err
		}
	}
	return ok, nil
}
