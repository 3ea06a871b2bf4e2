// Package logger holds the process-wide zap logger and the user-facing
// status lines printed by the setup steps.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the console level and an optional install log the output
// is also appended to.
type Config struct {
	Level    string
	FilePath string
}

// swapWriter is a WriteSyncer whose target can be replaced at runtime.
// Sync is a no-op so that syncing a terminal never reports an error.
type swapWriter struct {
	mu     sync.RWMutex
	writer io.Writer
}

func (w *swapWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.writer == nil {
		return 0, nil
	}
	return w.writer.Write(p)
}

func (w *swapWriter) Sync() error { return nil }

// swap installs next (fallback when nil) and returns the previous writer.
func (w *swapWriter) swap(next, fallback io.Writer) io.Writer {
	if next == nil {
		next = fallback
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.writer
	if prev == nil {
		prev = fallback
	}
	w.writer = next
	return prev
}

var (
	mu      sync.RWMutex
	once    sync.Once
	sugar   *zap.SugaredLogger
	base    *zap.Logger
	level   zap.AtomicLevel
	logFile *os.File
	applied Config

	stderrOut = &swapWriter{writer: os.Stderr}
)

func initDefault() {
	if err := apply(Config{Level: "info"}); err != nil {
		panic(fmt.Sprintf("logger initialization failed: %v", err))
	}
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewDevelopmentConfig().EncoderConfig
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	return enc
}

// apply rebuilds the logger for cfg. Callers must not hold mu.
func apply(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	lvl := parseLevel(cfg.Level)
	if level == (zap.AtomicLevel{}) {
		level = zap.NewAtomicLevelAt(lvl)
	} else {
		level.SetLevel(lvl)
	}

	enc := encoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(enc), stderrOut, level),
	}

	path := strings.TrimSpace(cfg.FilePath)
	switch {
	case path != "":
		core, f, err := installLogCore(path)
		if err != nil {
			return err
		}
		if logFile != nil && logFile != f {
			_ = logFile.Close()
		}
		logFile = f
		cores = append(cores, core)
	case logFile != nil:
		_ = logFile.Close()
		logFile = nil
	}

	// Step failures are logged at error level; only debug runs want the
	// stack behind them.
	stackAt := zapcore.DPanicLevel
	if lvl == zapcore.DebugLevel {
		stackAt = zapcore.ErrorLevel
	}

	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(stackAt))
	sugar = base.Sugar()
	zap.ReplaceGlobals(base)
	applied = Config{Level: lvl.String(), FilePath: path}
	return nil
}

// installLogCore appends JSON records to path so that consecutive setup
// runs accumulate in one machine-readable log.
func installLogCore(path string) (zapcore.Core, *os.File, error) {
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", path, err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.RFC3339TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), level), f, nil
}

// InitWithConfig configures the global logger, reconfiguring it when it was
// already set up with a different Config. The returned cleanup flushes the
// logger and closes the install log.
func InitWithConfig(cfg Config) (*zap.SugaredLogger, func(), error) {
	want := Config{Level: parseLevel(cfg.Level).String(), FilePath: strings.TrimSpace(cfg.FilePath)}

	var err error
	fresh := false
	once.Do(func() {
		err = apply(cfg)
		fresh = true
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", err)
	}

	if !fresh {
		mu.RLock()
		same := applied == want
		mu.RUnlock()
		if !same {
			if err := apply(cfg); err != nil {
				return nil, nil, fmt.Errorf("logger reconfiguration failed: %w", err)
			}
		}
	}

	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return nil, nil, fmt.Errorf("logger initialization failed: no logger built")
	}
	return sugar, cleanupFunc(logFile), nil
}

// Init sets up the global logger at info level.
func Init() (*zap.SugaredLogger, func()) {
	return mustInit(Config{Level: "info"})
}

// InitWithLevel sets up the global logger at level.
func InitWithLevel(level string) (*zap.SugaredLogger, func()) {
	return mustInit(Config{Level: level})
}

func mustInit(cfg Config) (*zap.SugaredLogger, func()) {
	s, cleanup, err := InitWithConfig(cfg)
	if err != nil {
		panic(err.Error())
	}
	return s, cleanup
}

// Logger returns the global sugared logger, creating an info-level console
// logger on first use.
func Logger() *zap.SugaredLogger {
	once.Do(initDefault)

	mu.RLock()
	defer mu.RUnlock()
	if sugar == nil {
		panic("logger initialization failed: no logger built")
	}
	return sugar
}

func With(args ...interface{}) *zap.SugaredLogger {
	return Logger().With(args...)
}

func cleanupFunc(f *os.File) func() {
	return func() {
		mu.Lock()
		defer mu.Unlock()

		if base != nil {
			if err := base.Sync(); err != nil {
				fmt.Fprintf(os.Stderr, "error syncing logger: %v\n", err)
			}
		}
		if f == nil {
			return
		}
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
		}
		if logFile == f {
			logFile = nil
		}
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogLevel changes the level of an initialized logger. It is a no-op
// before the first Init or Logger call.
func SetLogLevel(s string) {
	mu.Lock()
	defer mu.Unlock()

	if level == (zap.AtomicLevel{}) {
		return
	}
	lvl := parseLevel(s)
	level.SetLevel(lvl)
	applied.Level = lvl.String()
}

// ReplaceStderrWriter redirects console log output and returns the previous
// writer (never nil; defaults to os.Stderr).
func ReplaceStderrWriter(newOut io.Writer) (oldOut io.Writer) {
	return stderrOut.swap(newOut, os.Stderr)
}
