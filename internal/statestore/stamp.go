package statestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/megaguards/mg-setup/internal/digest"
)

// StampPath returns the stamp file of artifact name inside dir.
func StampPath(dir, name string) string {
	return filepath.Join(dir, "."+name)
}

// WriteStamp records hash as the verified content of artifact name.
func (s *Store) WriteStamp(dir, name, hash string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return s.write(StampPath(dir, name), []byte(hash))
}

// ReadStamp returns the hash recorded for artifact name, if any.
func (s *Store) ReadStamp(dir, name string) (string, bool, error) {
	data, exists, err := s.read(StampPath(dir, name))
	if err != nil || !exists {
		return "", false, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), true, nil
}

// RemoveStamp deletes the stamp of artifact name. A missing stamp is fine.
func (s *Store) RemoveStamp(dir, name string) error {
	if err := os.Remove(StampPath(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// StampValid reports whether a dataset is installed: the stamp exists, the
// blob exists, the blob hashes to expected and the stamp records expected.
// Any single failure means not installed.
func (s *Store) StampValid(dir, name, blobPath, expected string) (bool, error) {
	recorded, ok, err := s.ReadStamp(dir, name)
	if err != nil || !ok {
		return false, err
	}
	if !digest.Equal(recorded, expected) {
		return false, nil
	}
	return s.LibraryValid(blobPath, expected)
}

// WithVerifier returns a copy of s that checks blobs with v. Used for
// registry variants that declare their own hash algorithm.
func (s *Store) WithVerifier(v *digest.Verifier) *Store {
	c := *s
	c.Verifier = v
	return &c
}

// LibraryValid reports whether the blob at path exists and hashes to
// expected.
func (s *Store) LibraryValid(path, expected string) (bool, error) {
	return s.Verifier.Matches(path, expected)
}
