// Package digest computes and compares content hashes of downloaded artifacts.
package digest

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names accepted in configuration and registry entries.
const (
	SHA1   = "sha1"
	SHA256 = "sha256"
	BLAKE3 = "blake3"
)

// ErrIO marks failures to read the file being hashed.
var ErrIO = errors.New("io error")

var algorithms = map[string]func() hash.Hash{
	SHA1:   sha1.New,
	SHA256: sha256.New,
	BLAKE3: func() hash.Hash { return blake3.New() },
}

// Algorithms returns the supported algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verifier hashes files with one algorithm. The algorithm must be the one the
// registry's expected hashes were produced with.
type Verifier struct {
	algorithm string
	newHash   func() hash.Hash
}

// New returns a verifier for the named algorithm.
func New(algorithm string) (*Verifier, error) {
	name := strings.ToLower(strings.TrimSpace(algorithm))
	if name == "" {
		name = SHA1
	}
	fn, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm %q (supported: %s)",
			algorithm, strings.Join(Algorithms(), ", "))
	}
	return &Verifier{algorithm: name, newHash: fn}, nil
}

// Algorithm returns the algorithm name.
func (v *Verifier) Algorithm() string {
	return v.algorithm
}

// Digest returns the lowercase hex digest of the file at path.
func (v *Verifier) Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	h := v.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrIO, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Matches reports whether the file at path hashes to expected. A missing file
// is a mismatch, not an error.
func (v *Verifier) Matches(path, expected string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: checking %s: %v", ErrIO, path, err)
	}

	actual, err := v.Digest(path)
	if err != nil {
		return false, err
	}
	return Equal(actual, expected), nil
}

// Equal compares two hex digests ignoring case and surrounding whitespace. An
// empty expected digest never matches.
func Equal(actual, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(actual), expected)
}
