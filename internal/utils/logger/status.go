package logger

import (
	"fmt"
	"io"
	"os"
)

// StatusKind tags a user-facing status line.
type StatusKind int

const (
	StatusOK StatusKind = iota
	StatusError
	StatusWarn
	StatusInfo
	StatusProgress
)

var statusTags = map[StatusKind]string{
	StatusOK:       "   OK  ",
	StatusError:    " ERROR ",
	StatusWarn:     "WARNING",
	StatusInfo:     "  INFO ",
	StatusProgress: "  ...  ",
}

func (k StatusKind) String() string {
	if tag, ok := statusTags[k]; ok {
		return tag
	}
	return "  ???  "
}

var statusOut = &swapWriter{writer: os.Stdout}

// Statusf prints one "[ TAG ] message" line on the status writer and mirrors
// it into the structured log at debug level.
func Statusf(kind StatusKind, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(statusOut, "[%s] %s\n", kind, msg)
	Logger().Debugw(msg, "status", kind.String())
}

// Status reports the outcome of one setup step.
func Status(ok bool, msg string) {
	if ok {
		Statusf(StatusOK, "%s", msg)
		return
	}
	Statusf(StatusError, "%s", msg)
}

func OK(format string, args ...interface{})       { Statusf(StatusOK, format, args...) }
func Fail(format string, args ...interface{})     { Statusf(StatusError, format, args...) }
func Warn(format string, args ...interface{})     { Statusf(StatusWarn, format, args...) }
func Info(format string, args ...interface{})     { Statusf(StatusInfo, format, args...) }
func Progress(format string, args ...interface{}) { Statusf(StatusProgress, format, args...) }

// ReplaceStatusWriter swaps the writer status lines go to and returns the
// previous one (never nil; defaults to os.Stdout).
func ReplaceStatusWriter(newOut io.Writer) (oldOut io.Writer) {
	return statusOut.swap(newOut, os.Stdout)
}
