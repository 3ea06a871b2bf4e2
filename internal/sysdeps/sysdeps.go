// Package sysdeps installs the host packages the runtime build needs.
package sysdeps

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/megaguards/mg-setup/internal/utils/shell"
)

// Installer runs the package manager through Exec.
type Installer struct {
	Exec shell.Executor
	// Sudo prefixes every install command with sudo.
	Sudo    bool
	Verbose bool
}

// New returns an installer using the default executor and sudo.
func New() *Installer {
	return &Installer{Exec: shell.Default, Sudo: true}
}

// proxyEnv forwards proxy settings, which sudo drops by default.
func proxyEnv() []string {
	env := []string{}
	for k, v := range shell.GetOSProxyEnvirons() {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func (in *Installer) argv(pkg string) []string {
	argv := []string{"apt-get", "install", "-y", pkg}
	if in.Sudo {
		env := proxyEnv()
		prefix := append([]string{"sudo"}, env...)
		argv = append(prefix, argv...)
	}
	return argv
}

// Install installs each package in order and returns the ones that failed.
// A failed package does not stop the rest.
func (in *Installer) Install(ctx context.Context, packages []string) ([]string, error) {
	var failed []string
	for _, pkg := range packages {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		logger.Progress("Installing %s", pkg)
		if _, err := shell.ExecCmd(ctx, in.Exec, in.argv(pkg), shell.Options{Env: proxyEnv(), Tee: in.Verbose}); err != nil {
			logger.Logger().Debugf("apt-get install %s: %v", pkg, err)
			logger.Fail("Failed to install %s", pkg)
			failed = append(failed, pkg)
			continue
		}
		logger.OK("%s installed", pkg)
	}
	if len(failed) > 0 {
		return failed, fmt.Errorf("failed to install %d package(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return nil, nil
}
