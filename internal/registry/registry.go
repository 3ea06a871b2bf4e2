// Package registry holds the declarative table of artifacts mg-setup knows
// how to provision. A Registry is immutable once loaded.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/megaguards/mg-setup/internal/config/validate"
	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/megaguards/mg-setup/internal/utils/security"
	"gopkg.in/yaml.v3"
)

//go:embed default-registry.yml
var defaultRegistry []byte

// Platform names a registry variant.
type Platform string

const (
	Linux   Platform = "linux"
	Darwin  Platform = "darwin"
	Windows Platform = "windows"
)

// Platforms returns every platform a variant may be declared for.
func Platforms() []Platform {
	return []Platform{Linux, Darwin, Windows}
}

// ParsePlatform accepts a GOOS-style platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q (supported: linux, darwin, windows)", s)
}

// Kind selects how an installed artifact is recorded.
type Kind string

const (
	// KindLibrary is recorded as an environment variable holding the path
	// of the installed file.
	KindLibrary Kind = "library"
	// KindDataset is recorded as a stamp file inside the dataset directory.
	KindDataset Kind = "dataset"
)

// StepBenchmarkSuite is the non-artifact prerequisite that checks out the
// benchmark suite. Artifacts may list it in Requires.
const StepBenchmarkSuite = "benchmark-suite"

var knownSteps = map[string]bool{
	StepBenchmarkSuite: true,
}

// IsStep reports whether name is a prerequisite step rather than an artifact.
func IsStep(name string) bool {
	return knownSteps[name]
}

// ErrNotFound is matched by NotFoundError.
var ErrNotFound = errors.New("artifact not found")

// NotFoundError reports a lookup of an artifact the registry does not hold.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %q not found in registry", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// VariantSpec is the platform-specific source of an artifact.
type VariantSpec struct {
	URL        string   `yaml:"url"`
	Mirrors    []string `yaml:"mirrors,omitempty"`
	SHA        string   `yaml:"sha"`
	Compressed bool     `yaml:"compressed"`
	Suffix     string   `yaml:"suffix,omitempty"`
	Format     string   `yaml:"format,omitempty"`    // archive format, detected from the URL when empty
	Algorithm  string   `yaml:"algorithm,omitempty"` // digest of SHA, the configured one when empty
}

// Sources returns URL followed by the mirrors.
func (v VariantSpec) Sources() []string {
	urls := make([]string, 0, 1+len(v.Mirrors))
	if v.URL != "" {
		urls = append(urls, v.URL)
	}
	return append(urls, v.Mirrors...)
}

// ArtifactSpec describes one fetchable unit.
type ArtifactSpec struct {
	Name        string                   `yaml:"name"`
	Kind        Kind                     `yaml:"kind"`
	EnvVar      string                   `yaml:"env_var,omitempty"`
	InstallName string                   `yaml:"install_name,omitempty"`
	Path        string                   `yaml:"path,omitempty"`
	Description string                   `yaml:"description,omitempty"`
	Requires    []string                 `yaml:"requires,omitempty"`
	Variants    map[Platform]VariantSpec `yaml:"variants"`
}

// Registry is a loaded artifact table.
type Registry struct {
	Version   int            `yaml:"version"`
	Artifacts []ArtifactSpec `yaml:"artifacts"`

	index map[string]int
}

// Default returns the built-in registry.
func Default() (*Registry, error) {
	return LoadBytes(defaultRegistry)
}

// Load reads a registry file. Symlinked files are rejected.
func Load(path string) (*Registry, error) {
	data, err := security.SafeReadFile(path, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}
	reg, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading registry %s: %w", path, err)
	}
	logger.Logger().Debugf("loaded %d artifacts from %s", len(reg.Artifacts), path)
	return reg, nil
}

// LoadBytes decodes a YAML registry, validating it against the registry
// schema before decoding and checking cross references after.
func LoadBytes(data []byte) (*Registry, error) {
	if err := validate.ValidateRegistryYAML(data); err != nil {
		return nil, fmt.Errorf("registry validation failed: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing registry YAML: %w", err)
	}
	if err := reg.check(); err != nil {
		return nil, fmt.Errorf("registry validation failed: %w", err)
	}
	return &reg, nil
}

func (r *Registry) check() error {
	r.index = make(map[string]int, len(r.Artifacts))
	for i, a := range r.Artifacts {
		if _, dup := r.index[a.Name]; dup {
			return fmt.Errorf("duplicate artifact %q", a.Name)
		}
		if IsStep(a.Name) {
			return fmt.Errorf("artifact %q shadows a prerequisite step", a.Name)
		}
		r.index[a.Name] = i

		switch a.Kind {
		case KindLibrary:
			if a.EnvVar == "" || a.InstallName == "" {
				return fmt.Errorf("library %q needs env_var and install_name", a.Name)
			}
		case KindDataset:
			if strings.TrimSpace(a.Path) == "" {
				return fmt.Errorf("dataset %q needs a path", a.Name)
			}
			if strings.Contains(a.Path, "..") {
				return fmt.Errorf("dataset %q path %q must not contain '..'", a.Name, a.Path)
			}
		default:
			return fmt.Errorf("artifact %q has unknown kind %q", a.Name, a.Kind)
		}

		for p, v := range a.Variants {
			if _, err := ParsePlatform(string(p)); err != nil {
				return fmt.Errorf("artifact %q: %w", a.Name, err)
			}
			for _, u := range v.Sources() {
				if err := security.ValidateURL("url", u, security.DefaultLimits()); err != nil {
					return fmt.Errorf("artifact %q variant %s: %w", a.Name, p, err)
				}
			}
			if v.URL != "" && v.SHA == "" {
				return fmt.Errorf("artifact %q variant %s has a url but no sha", a.Name, p)
			}
			if v.URL == "" && len(v.Mirrors) > 0 {
				return fmt.Errorf("artifact %q variant %s has mirrors but no url", a.Name, p)
			}
		}
	}

	for _, a := range r.Artifacts {
		for _, req := range a.Requires {
			if req == a.Name {
				return fmt.Errorf("artifact %q requires itself", a.Name)
			}
			if _, ok := r.index[req]; !ok && !IsStep(req) {
				return fmt.Errorf("artifact %q requires unknown artifact %q", a.Name, req)
			}
		}
	}
	return r.checkCycles()
}

func (r *Registry) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.Artifacts))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("dependency cycle: %s -> %s", strings.Join(path, " -> "), name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, req := range r.Artifacts[r.index[name]].Requires {
			if IsStep(req) {
				continue
			}
			if err := visit(req, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, a := range r.Artifacts {
		if err := visit(a.Name, nil); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the artifact called name or a *NotFoundError.
func (r *Registry) Lookup(name string) (ArtifactSpec, error) {
	i, ok := r.index[name]
	if !ok {
		return ArtifactSpec{}, &NotFoundError{Name: name}
	}
	return r.Artifacts[i], nil
}

// VariantFor returns the variant of spec for platform. A variant without a
// URL counts as absent.
func VariantFor(spec ArtifactSpec, platform Platform) (VariantSpec, bool) {
	v, ok := spec.Variants[platform]
	if !ok || strings.TrimSpace(v.URL) == "" {
		return VariantSpec{}, false
	}
	return v, true
}

// Names returns the artifact names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// Supported returns the names of artifacts that have a usable variant for
// platform, sorted.
func (r *Registry) Supported(platform Platform) []string {
	var names []string
	for _, a := range r.Artifacts {
		if _, ok := VariantFor(a, platform); ok {
			names = append(names, a.Name)
		}
	}
	sort.Strings(names)
	return names
}
