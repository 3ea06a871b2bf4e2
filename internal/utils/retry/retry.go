// Package retry re-runs liveness checks a bounded number of times on top of
// github.com/juju/retry, without backoff between attempts.
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	jujuretry "github.com/juju/retry"

	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// DefaultAttempts is how many times a liveness check is tried before giving up.
const DefaultAttempts = 3

// immediate is the pause between attempts; juju/retry requires a non-zero
// delay.
const immediate = time.Nanosecond

// errNotYet marks an attempt that ran cleanly but did not succeed.
var errNotYet = errors.New("attempt did not succeed")

// Action is one attempt. It reports success; a non-nil error aborts the
// remaining attempts.
type Action func(attempt int) (bool, error)

// Policy re-runs an action immediately, without backoff, until it succeeds or
// the attempts are used up.
type Policy struct {
	Attempts int
	// OnRetry is called after every failed attempt that will be retried.
	OnRetry func(attempt, total int)
}

// New returns a policy with the given attempt count and the default retry
// message.
func New(attempts int, what string) Policy {
	return Policy{
		Attempts: attempts,
		OnRetry: func(attempt, total int) {
			logger.Progress("%s failed.. retry %d of %d", what, attempt, total)
		},
	}
}

// Do runs action up to p.Attempts times and reports whether any attempt
// succeeded.
func (p Policy) Do(action Action) (bool, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	var abort error
	err := jujuretry.Call(jujuretry.CallArgs{
		Func: func() error {
			attempt++
			ok, err := action(attempt)
			switch {
			case err != nil:
				abort = fmt.Errorf("attempt %d of %d: %w", attempt, attempts, err)
				return abort
			case !ok:
				return errNotYet
			}
			return nil
		},
		IsFatalError: func(error) bool { return abort != nil },
		NotifyFunc: func(_ error, n int) {
			// juju/retry also notifies after the last attempt.
			if n < attempts && p.OnRetry != nil {
				p.OnRetry(n, attempts)
			}
		},
		Attempts: attempts,
		Delay:    immediate,
		Clock:    clock.WallClock,
	})

	switch {
	case err == nil:
		return true, nil
	case abort != nil:
		return false, abort
	case jujuretry.IsAttemptsExceeded(err):
		return false, nil
	default:
		return false, err
	}
}
