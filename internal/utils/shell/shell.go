package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// Result is the outcome of one process run. A non-zero ExitCode is not an
// error; callers decide whether it is fatal.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the process exited with status 0.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + r.Stderr
}

// Options tunes a single Run call.
type Options struct {
	Cwd   string   // working directory, empty for the current one
	Env   []string // extra KEY=value pairs appended to the process environment
	Stdin string   // fed to the process on standard input
	Tee   bool     // forward output lines to the log while capturing them
}

// Executor runs external processes.
type Executor interface {
	Run(ctx context.Context, argv []string, opts Options) (Result, error)
}

// Default is the executor used when a caller has none configured. Tests
// replace it with a MockExecutor.
var Default Executor = &DefaultExecutor{}

// DefaultExecutor runs processes on the host with os/exec.
type DefaultExecutor struct{}

// Run starts argv and blocks until it exits or ctx is done. The returned error
// is non-nil only when the process could not be started or was cancelled.
func (e *DefaultExecutor) Run(ctx context.Context, argv []string, opts Options) (Result, error) {
	log := logger.Logger()
	if len(argv) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("empty command")
	}

	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("command %s not found: %w", argv[0], err)
	}

	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Dir = opts.Cwd
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	var stdout, stderr bytes.Buffer
	if opts.Tee {
		outLines := &lineWriter{emit: func(s string) { log.Infof("%s", s) }}
		errLines := &lineWriter{emit: func(s string) { log.Infof("%s", s) }}
		defer outLines.Flush()
		defer errLines.Flush()
		cmd.Stdout = io.MultiWriter(&stdout, outLines)
		cmd.Stderr = io.MultiWriter(&stderr, errLines)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	log.Debugf("Exec: [%s] cwd=%q", strings.Join(argv, " "), opts.Cwd)
	runErr := cmd.Run()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("command %s interrupted: %w", argv[0], ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if res.Stderr != "" {
			log.Debugf("%s", res.Stderr)
		}
		return res, nil
	}

	res.ExitCode = -1
	return res, fmt.Errorf("failed to exec %s: %w", strings.Join(argv, " "), runErr)
}

// ExecCmd runs argv with e (Default when nil) and treats a non-zero exit as
// an error that carries the process's standard error. It returns the standard
// output.
func ExecCmd(ctx context.Context, e Executor, argv []string, opts Options) (string, error) {
	if e == nil {
		e = Default
	}
	res, err := e.Run(ctx, argv, opts)
	if err != nil {
		return res.Stdout, err
	}
	if !res.OK() {
		if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
			return res.Stdout, fmt.Errorf("%s exited with status %d: %s", strings.Join(argv, " "), res.ExitCode, errOut)
		}
		return res.Stdout, fmt.Errorf("%s exited with status %d", strings.Join(argv, " "), res.ExitCode)
	}
	return res.Stdout, nil
}

// GetOSEnvirons returns the process environment as a map.
func GetOSEnvirons() map[string]string {
	environ := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			environ[parts[0]] = parts[1]
		}
	}
	return environ
}

// GetOSProxyEnvirons returns the http(s)_proxy and no_proxy variables of the
// process environment, in any letter case.
func GetOSProxyEnvirons() map[string]string {
	proxyEnv := make(map[string]string)
	for key, value := range GetOSEnvirons() {
		lower := strings.ToLower(key)
		if lower == "http_proxy" || lower == "https_proxy" || lower == "no_proxy" {
			proxyEnv[key] = value
		}
	}
	return proxyEnv
}

// lineWriter splits a byte stream into lines and hands each non-empty one to
// emit.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:idx]), "\r")
		w.buf = w.buf[idx+1:]
		if line != "" {
			w.emit(line)
		}
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}
