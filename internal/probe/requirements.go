package probe

import (
	"context"
	"strings"

	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// Requirement is a program the benchmarks expect on the PATH.
type Requirement struct {
	Name    string
	Argv    []string
	Version string
	Hint    string
}

// Requirements lists the recommended benchmark toolchain.
var Requirements = []Requirement{
	{"CPython2", []string{"python", "--version"}, "2.7.14", `(Download URL: "https://repo.continuum.io/archive/Anaconda2-5.1.0-Linux-x86_64.sh")`},
	{"CPython3", []string{"python3", "--version"}, "3.5.3", `(Download URL: "https://repo.continuum.io/archive/Anaconda3-4.4.0-Linux-x86_64.sh")`},
	{"PyPy3", []string{"pypy3", "--version"}, "5.10.0", `(Download URL: "https://bitbucket.org/pypy/pypy/downloads/pypy3-v5.10.0-linux64.tar.bz2")`},
	{"GCC", []string{"gcc", "--version"}, "5.4.1", `(Run: "sudo apt-get install gcc-5")`},
}

// PythonModule is a module the benchmark report scripts import.
type PythonModule struct {
	Import string
	Hint   string
}

// PythonModules are checked with the CPython3 interpreter.
var PythonModules = []PythonModule{
	{"matplotlib.pyplot", `(Run: "conda install matplotlib")`},
	{"numpy", `(Run: "conda install numpy")`},
	{"scipy.stats", `(Run: "conda install scipy")`},
}

// RequirementStatus is the outcome of one requirement check.
type RequirementStatus string

const (
	StatusFound    RequirementStatus = "found"
	StatusMismatch RequirementStatus = "mismatch"
	StatusMissing  RequirementStatus = "missing"
)

// RequirementResult pairs a requirement name with its status.
type RequirementResult struct {
	Name   string
	Status RequirementStatus
}

// CheckRequirements runs every version check and python module import. A
// version mismatch is a warning only; missing programs and modules are
// errors.
func (p *Prober) CheckRequirements(ctx context.Context) []RequirementResult {
	var results []RequirementResult

	for _, r := range Requirements {
		res, err := p.run(ctx, r.Argv, "")
		switch {
		case err != nil || !res.OK():
			logger.Fail("%s was not found or not in $PATH. %s", r.Name, r.Hint)
			results = append(results, RequirementResult{r.Name, StatusMissing})
		case strings.Contains(res.Combined(), r.Version):
			logger.OK("%s v%s exists", r.Name, r.Version)
			results = append(results, RequirementResult{r.Name, StatusFound})
		default:
			logger.Warn("%s exists but mis-match the recommended v%s", r.Name, r.Version)
			results = append(results, RequirementResult{r.Name, StatusMismatch})
		}
	}

	for _, m := range PythonModules {
		name := strings.SplitN(m.Import, ".", 2)[0]
		res, err := p.run(ctx, []string{"python3", "-c", "import " + m.Import}, "")
		if err != nil || !res.OK() {
			logger.Fail("%s was not found %s", name, m.Hint)
			results = append(results, RequirementResult{name, StatusMissing})
			continue
		}
		results = append(results, RequirementResult{name, StatusFound})
	}
	return results
}

// RequirementsMet reports whether nothing is missing. Mismatched versions
// still count as met.
func RequirementsMet(results []RequirementResult) bool {
	for _, r := range results {
		if r.Status == StatusMissing {
			return false
		}
	}
	return true
}
