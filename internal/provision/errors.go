package provision

import (
	"errors"
	"fmt"

	"github.com/megaguards/mg-setup/internal/digest"
	"github.com/megaguards/mg-setup/internal/fetcher"
	"github.com/megaguards/mg-setup/internal/registry"
	"github.com/megaguards/mg-setup/internal/utils/compression"
)

// Sentinels matched by the typed errors below.
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrNotFound            = registry.ErrNotFound
	ErrNetwork             = fetcher.ErrNetwork
	ErrIntegrity           = errors.New("integrity check failed")
	ErrExtraction          = compression.ErrExtraction
	ErrIO                  = digest.ErrIO
)

// NotFoundError is returned for artifacts the registry does not hold.
type NotFoundError = registry.NotFoundError

// UnsupportedPlatformError reports an artifact with no usable variant for the
// platform being provisioned.
type UnsupportedPlatformError struct {
	Name     string
	Platform registry.Platform
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("%s: no variant available for platform %s", e.Name, e.Platform)
}

func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

// NetworkError reports a download that failed on every source.
type NetworkError struct {
	Name string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: download failed: %v", e.Name, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// IntegrityError reports a downloaded blob whose digest is not the one the
// registry declares.
type IntegrityError struct {
	Name     string
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: hash mismatch for %s: expected %s, got %s", e.Name, e.Path, e.Expected, e.Actual)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// ExtractionError reports an archive that could not be unpacked. The
// destination has already been rolled back when it is returned.
type ExtractionError struct {
	Name string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

// IOError reports a filesystem failure while checking or recording state.
type IOError struct {
	Name string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Name, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

func ioError(name, op string, err error) error {
	return &IOError{Name: name, Op: op, Err: err}
}
