// Package provision makes registry artifacts present on disk: it checks the
// install record, fetches, verifies, unpacks and records, and does nothing
// when a valid install is already there.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/megaguards/mg-setup/internal/config"
	"github.com/megaguards/mg-setup/internal/digest"
	"github.com/megaguards/mg-setup/internal/fetcher"
	"github.com/megaguards/mg-setup/internal/registry"
	"github.com/megaguards/mg-setup/internal/statestore"
	"github.com/megaguards/mg-setup/internal/utils/compression"
	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// Request is the per-call input of Ensure.
type Request struct {
	Artifact string
	// Force skips the installed shortcut and re-runs the pipeline.
	Force bool
	// CheckOnly reports the install state without touching anything.
	CheckOnly bool
}

// Extractor unpacks an archive into a directory, removing the directory
// when it fails.
type Extractor interface {
	Extract(archivePath, destDir string, format compression.Format) error
}

// Prerequisite ensures a non-artifact step an artifact requires, such as the
// benchmark suite checkout.
type Prerequisite func(ctx context.Context, req Request) (bool, error)

// Engine provisions registry artifacts. It runs one artifact at a time and
// keeps no state between calls.
type Engine struct {
	Config    *config.ProvisioningConfig
	Registry  *registry.Registry
	Store     *statestore.Store
	Fetcher   fetcher.Fetcher
	Extractor Extractor
	Verifier  *digest.Verifier
	Platform  registry.Platform
	Observer  Observer
	// Prerequisites maps step names from ArtifactSpec.Requires to their
	// handlers.
	Prerequisites map[string]Prerequisite
}

// New builds an engine over cfg with the HTTP fetcher and the default
// extractor.
func New(cfg *config.ProvisioningConfig, reg *registry.Registry) (*Engine, error) {
	verifier, err := digest.New(cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	platform, err := registry.ParsePlatform(cfg.Platform)
	if err != nil {
		return nil, err
	}
	mode, err := statestore.ParseUpsertMode(cfg.UpsertMode)
	if err != nil {
		return nil, err
	}

	store := statestore.New(cfg.EnvFile, verifier)
	store.Mode = mode

	return &Engine{
		Config:        cfg,
		Registry:      reg,
		Store:         store,
		Fetcher:       fetcher.NewHTTPFetcher(cfg.DownloadTimeout),
		Extractor:     compression.Default,
		Verifier:      verifier,
		Platform:      platform,
		Prerequisites: map[string]Prerequisite{},
	}, nil
}

// plan is everything Ensure needs to know about one artifact variant.
type plan struct {
	spec     registry.ArtifactSpec
	variant  registry.VariantSpec
	format   compression.Format
	verifier *digest.Verifier
	store    *statestore.Store

	// blob is the file whose hash is checked: the downloaded archive for
	// compressed artifacts, the installed file otherwise.
	blob string
	// installed is the library file recorded in the env file.
	installed string
	// target is where a dataset is unpacked and stamped.
	target string
}

func (e *Engine) plan(spec registry.ArtifactSpec, variant registry.VariantSpec) (*plan, error) {
	p := &plan{spec: spec, variant: variant, verifier: e.Verifier, store: e.Store}

	if variant.Algorithm != "" {
		v, err := digest.New(variant.Algorithm)
		if err != nil {
			return nil, err
		}
		p.verifier = v
		p.store = e.Store.WithVerifier(v)
	}

	if variant.Compressed {
		format, err := archiveFormat(variant)
		if err != nil {
			return nil, err
		}
		p.format = format
	}

	cfg := e.Config
	switch spec.Kind {
	case registry.KindLibrary:
		p.installed = cfg.LibPath(spec.InstallName, variant.Suffix)
		p.blob = p.installed
		if variant.Compressed {
			p.blob = cfg.DownloadPath(spec.InstallName, string(p.format))
		}
	case registry.KindDataset:
		p.target = spec.Path
		if !filepath.IsAbs(p.target) {
			p.target = filepath.Join(cfg.DatasetDir, p.target)
		}
		p.blob = filepath.Join(p.target, spec.Name+variant.Suffix)
		if variant.Compressed {
			p.blob = cfg.DownloadPath(spec.Name, string(p.format))
		}
	default:
		return nil, fmt.Errorf("%s: unknown artifact kind %q", spec.Name, spec.Kind)
	}
	return p, nil
}

func archiveFormat(v registry.VariantSpec) (compression.Format, error) {
	if v.Format != "" {
		return compression.ParseFormat(v.Format)
	}
	if f, err := compression.DetectFormat(v.URL); err == nil {
		return f, nil
	}
	return compression.Zip, nil
}

// valid applies the install record rules: a library needs its blob (and,
// when compressed, the unpacked file) in place with the declared hash; a
// dataset needs stamp and blob both carrying the declared hash.
func (p *plan) valid() (bool, error) {
	switch p.spec.Kind {
	case registry.KindLibrary:
		ok, err := p.store.LibraryValid(p.blob, p.variant.SHA)
		if err != nil || !ok {
			return false, err
		}
		if p.variant.Compressed {
			if _, err := os.Stat(p.installed); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return false, nil
				}
				return false, fmt.Errorf("%w: %v", ErrIO, err)
			}
		}
		return true, nil
	default:
		return p.store.StampValid(p.target, p.spec.Name, p.blob, p.variant.SHA)
	}
}

// Ensure makes req.Artifact installed and reports whether it is. With
// CheckOnly it only reports, without writing anything.
func (e *Engine) Ensure(ctx context.Context, req Request) (bool, error) {
	t := &tracker{e: e, name: req.Artifact}

	spec, err := e.Registry.Lookup(req.Artifact)
	if err != nil {
		return false, t.fail(err)
	}
	variant, ok := registry.VariantFor(spec, e.Platform)
	if !ok {
		return false, t.fail(&UnsupportedPlatformError{Name: spec.Name, Platform: e.Platform})
	}
	p, err := e.plan(spec, variant)
	if err != nil {
		return false, t.fail(err)
	}

	if err := e.ensureRequires(ctx, spec, req); err != nil {
		return false, t.fail(err)
	}

	t.to(Checking)
	installed, err := p.valid()
	if err != nil {
		return false, t.fail(ioError(spec.Name, "checking install record", err))
	}

	if req.CheckOnly {
		if installed {
			t.to(Satisfied)
		} else {
			t.to(Missing)
		}
		return installed, nil
	}

	if installed && !req.Force {
		// Libraries re-assert their env var so a hand-edited file is repaired.
		if spec.Kind == registry.KindLibrary {
			if err := e.record(p); err != nil {
				return false, t.fail(err)
			}
		}
		t.to(Satisfied)
		logger.Logger().Debugf("%s is already installed", spec.Name)
		return true, nil
	}

	t.to(Missing)
	if err := ctx.Err(); err != nil {
		return false, t.fail(err)
	}

	t.to(Fetching)
	if err := e.fetch(ctx, t, p); err != nil {
		return false, t.fail(err)
	}

	if variant.Compressed {
		t.to(Extracting)
		if err := e.extract(ctx, p); err != nil {
			return false, t.fail(err)
		}
	}

	t.to(Recording)
	if err := e.record(p); err != nil {
		return false, t.fail(err)
	}

	t.to(Satisfied)
	return true, nil
}

func (e *Engine) ensureRequires(ctx context.Context, spec registry.ArtifactSpec, req Request) error {
	for _, name := range spec.Requires {
		sub := Request{Artifact: name, Force: req.Force, CheckOnly: req.CheckOnly}
		if registry.IsStep(name) {
			step, ok := e.Prerequisites[name]
			if !ok {
				logger.Logger().Warnf("%s requires %s, which has no handler; skipping it", spec.Name, name)
				continue
			}
			if _, err := step(ctx, sub); err != nil {
				return fmt.Errorf("%s: prerequisite %s: %w", spec.Name, name, err)
			}
			continue
		}
		if _, err := e.Ensure(ctx, sub); err != nil {
			return fmt.Errorf("%s: prerequisite %s: %w", spec.Name, name, err)
		}
	}
	return nil
}

// fetch places a blob with the declared hash at p.blob. A blob already on
// disk with that hash is reused without touching the network.
func (e *Engine) fetch(ctx context.Context, t *tracker, p *plan) error {
	name := p.spec.Name

	ok, err := p.verifier.Matches(p.blob, p.variant.SHA)
	if err != nil {
		return ioError(name, "checking cached blob", err)
	}
	if ok {
		logger.Logger().Infof("Using cached %s", p.blob)
		t.to(Verifying)
		return nil
	}

	staging := fmt.Sprintf("%s.part-%s", p.blob, uuid.NewString())
	defer os.Remove(staging)

	if err := e.Fetcher.Fetch(ctx, p.variant.Sources(), staging); err != nil {
		if errors.Is(err, fetcher.ErrNetwork) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &NetworkError{Name: name, Err: err}
		}
		return ioError(name, "downloading", err)
	}

	t.to(Verifying)
	actual, err := p.verifier.Digest(staging)
	if err != nil {
		return ioError(name, "hashing download", err)
	}
	if !digest.Equal(actual, p.variant.SHA) {
		return &IntegrityError{Name: name, Path: p.blob, Expected: p.variant.SHA, Actual: actual}
	}

	if err := os.Rename(staging, p.blob); err != nil {
		return ioError(name, "moving download into place", err)
	}
	logger.Logger().Debugf("%s verified (%s %s)", p.blob, p.verifier.Algorithm(), actual)
	return nil
}

// extract unpacks p.blob. Datasets are unpacked straight into their
// directory, which is removed on failure. Libraries share lib/ with the
// downloads directory, so they are unpacked into a private staging
// directory whose entries are moved into lib/ once extraction succeeds.
func (e *Engine) extract(ctx context.Context, p *plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := p.spec.Name

	if p.spec.Kind == registry.KindDataset {
		if err := e.Extractor.Extract(p.blob, p.target, p.format); err != nil {
			return &ExtractionError{Name: name, Err: err}
		}
		return nil
	}

	libDir := e.Config.LibDir
	staging := filepath.Join(libDir, fmt.Sprintf(".%s.extract-%s", p.spec.InstallName, uuid.NewString()))
	defer os.RemoveAll(staging)

	if err := e.Extractor.Extract(p.blob, staging, p.format); err != nil {
		return &ExtractionError{Name: name, Err: err}
	}
	if err := e.promote(staging, libDir); err != nil {
		return ioError(name, "installing extracted files", err)
	}
	if _, err := os.Stat(p.installed); err != nil {
		return &ExtractionError{
			Name: name,
			Err:  fmt.Errorf("%w: %s does not contain %s", ErrExtraction, filepath.Base(p.blob), filepath.Base(p.installed)),
		}
	}
	return nil
}

// promote moves every top-level entry of staging into dest, replacing
// entries of the same name. The downloads directory is never replaced.
func (e *Engine) promote(staging, dest string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		target := filepath.Join(dest, entry.Name())
		if target == e.Config.DownloadsDir {
			logger.Logger().Warnf("archive entry %s would replace the downloads directory; skipping it", entry.Name())
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(staging, entry.Name()), target); err != nil {
			return err
		}
	}
	return nil
}

// record writes the install record: the env var of a library, the stamp of
// a dataset.
func (e *Engine) record(p *plan) error {
	name := p.spec.Name
	switch p.spec.Kind {
	case registry.KindLibrary:
		if _, err := p.store.WriteVar(p.spec.EnvVar, p.installed); err != nil {
			return ioError(name, "recording "+p.spec.EnvVar, err)
		}
	case registry.KindDataset:
		if err := p.store.WriteStamp(p.target, name, p.variant.SHA); err != nil {
			return ioError(name, "writing stamp", err)
		}
	}
	return nil
}
