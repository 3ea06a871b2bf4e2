package provision

import (
	"context"

	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// Result is the outcome of one artifact in a batch.
type Result struct {
	Name      string
	Installed bool
	Err       error
}

// EnsureAll runs Ensure for every name in order. A failing artifact never
// stops the others; each gets its own Result.
func (e *Engine) EnsureAll(ctx context.Context, names []string, req Request) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		r := req
		r.Artifact = name
		installed, err := e.Ensure(ctx, r)
		if err != nil {
			logger.Logger().Errorf("%s: %v", name, err)
		}
		results = append(results, Result{Name: name, Installed: installed, Err: err})
	}
	return results
}

// FailedResults returns the results that carry an error or report not installed.
func FailedResults(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil || !r.Installed {
			failed = append(failed, r)
		}
	}
	return failed
}

// EnsureEnvPath records name=value in the env file unless the variable is
// already present in the process environment. Only presence is checked, not
// the value. With CheckOnly it reports whether the variable is set in the
// process environment or recorded in the env file, which mx exports on its
// next start.
func (e *Engine) EnsureEnvPath(ctx context.Context, name, value string, req Request) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	lookup := e.Store.LookupEnv
	set := false
	if lookup != nil {
		_, set = lookup(name)
	}
	if req.CheckOnly {
		if set {
			return true, nil
		}
		_, recorded, err := e.Store.ReadVar(name)
		if err != nil {
			return false, ioError(name, "reading environment file", err)
		}
		return recorded, nil
	}
	if set && !req.Force {
		return true, nil
	}

	if _, err := e.Store.WriteVar(name, value); err != nil {
		return false, ioError(name, "recording environment path", err)
	}
	return true, nil
}
