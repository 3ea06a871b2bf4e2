// Package statestore persists install records: NAME=value lines in the
// environment file for libraries and hidden stamp files for datasets. It is
// the only writer of either.
package statestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/megaguards/mg-setup/internal/digest"
	"github.com/megaguards/mg-setup/internal/utils/security"
)

// EnvHeader is the first line of a freshly created environment file.
const EnvHeader = "# MegaGuards environment variables"

// ErrIO marks failures reading or writing state. It is the same sentinel the
// digest package uses for unreadable blobs.
var ErrIO = digest.ErrIO

// UpsertMode selects how WriteVar treats a variable that is already recorded
// with a different value.
type UpsertMode string

const (
	// UpsertReplace disables the old line and appends the new value.
	UpsertReplace UpsertMode = "replace"
	// UpsertLegacy disables the old line and drops the new value while still
	// reporting a change. Kept for compatibility with older setup runs.
	UpsertLegacy UpsertMode = "legacy"
)

// ParseUpsertMode validates a mode name; empty means UpsertReplace.
func ParseUpsertMode(s string) (UpsertMode, error) {
	switch UpsertMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", UpsertReplace:
		return UpsertReplace, nil
	case UpsertLegacy:
		return UpsertLegacy, nil
	}
	return "", fmt.Errorf("unknown upsert mode %q (expected %q or %q)", s, UpsertReplace, UpsertLegacy)
}

// Store reads and writes install records. Nothing is cached: every call
// re-reads the file it is asked about, so hand edits between runs are seen.
type Store struct {
	EnvFile  string
	Mode     UpsertMode
	Policy   security.SymlinkPolicy
	Verifier *digest.Verifier
	// LookupEnv reports variables of the live process environment. Variables
	// set there are never written to the file.
	LookupEnv func(string) (string, bool)
}

// New returns a store for envFile using verifier for blob checks.
func New(envFile string, verifier *digest.Verifier) *Store {
	return &Store{
		EnvFile:   envFile,
		Mode:      UpsertReplace,
		Policy:    security.RejectSymlinks,
		Verifier:  verifier,
		LookupEnv: os.LookupEnv,
	}
}

func (s *Store) read(path string) ([]byte, bool, error) {
	data, err := security.SafeReadFile(path, s.Policy)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return data, true, nil
}

func (s *Store) write(path string, data []byte) error {
	if err := security.SafeWriteFile(path, data, 0644, s.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (s *Store) externallySet(name string) bool {
	if s.LookupEnv == nil {
		return false
	}
	v, ok := s.LookupEnv(name)
	return ok && v != ""
}
