// Package cache removes provisioned artifacts so the next setup run fetches
// them again.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/megaguards/mg-setup/internal/config"
	"github.com/megaguards/mg-setup/internal/statestore"
	fileutil "github.com/megaguards/mg-setup/internal/utils/file"
)

// CleanOptions defines what cached artifacts should be removed.
type CleanOptions struct {
	CleanDownloads bool   // remove archives under lib/downloads and leftover staging files
	CleanDatasets  bool   // remove extracted dataset directories with their stamps
	Name           string // optional filter: archive base name or dataset directory
	DryRun         bool   // report actions without deleting anything
}

// CleanResult contains the outcome of a cleanup run.
type CleanResult struct {
	RemovedPaths []string
	SkippedPaths []string
}

// Clean removes cached artifacts below cfg.RootDir according to opts.
func Clean(cfg *config.ProvisioningConfig, opts CleanOptions) (*CleanResult, error) {
	if !opts.CleanDownloads && !opts.CleanDatasets {
		return nil, fmt.Errorf("at least one scope must be specified")
	}

	targets, missing, err := gatherTargets(cfg, opts)
	if err != nil {
		return nil, err
	}

	// Removing stamps needs no verifier.
	stamps := statestore.New(cfg.EnvFile, nil)

	removed := make([]string, 0, len(targets))
	skippedSet := make(map[string]struct{}, len(missing))
	for _, path := range missing {
		skippedSet[path] = struct{}{}
	}

	for _, target := range targets {
		exists, err := fileutil.PathExists(target)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if !exists {
			skippedSet[target] = struct{}{}
			continue
		}

		if opts.DryRun {
			removed = append(removed, target)
			continue
		}

		if opts.CleanDatasets {
			if err := dropStamps(stamps, cfg.DatasetDir, target); err != nil {
				return nil, err
			}
		}
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("removing %s: %w", target, err)
		}
		removed = append(removed, target)
	}

	sort.Strings(removed)

	skipped := make([]string, 0, len(skippedSet))
	for path := range skippedSet {
		skipped = append(skipped, path)
	}
	sort.Strings(skipped)

	return &CleanResult{
		RemovedPaths: removed,
		SkippedPaths: skipped,
	}, nil
}

func gatherTargets(cfg *config.ProvisioningConfig, opts CleanOptions) ([]string, []string, error) {
	targets := make(map[string]struct{})
	missing := make(map[string]struct{})

	collect := func(found, absent []string) {
		for _, path := range found {
			targets[path] = struct{}{}
		}
		for _, path := range absent {
			missing[path] = struct{}{}
		}
	}

	if opts.CleanDownloads {
		found, absent, err := downloadTargets(cfg, opts.Name)
		if err != nil {
			return nil, nil, err
		}
		collect(found, absent)
	}

	if opts.CleanDatasets {
		found, absent, err := datasetTargets(cfg, opts.Name)
		if err != nil {
			return nil, nil, err
		}
		collect(found, absent)
	}

	return sortedKeys(targets), sortedKeys(missing), nil
}

func sortedKeys(m map[string]struct{}) []string {
	list := make([]string, 0, len(m))
	for path := range m {
		list = append(list, path)
	}
	sort.Strings(list)
	return list
}

// archiveBase strips the archive extension and any staging suffix.
func archiveBase(name string) string {
	if i := strings.Index(name, ".part-"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

func downloadTargets(cfg *config.ProvisioningConfig, name string) ([]string, []string, error) {
	if err := ensureSubPath(cfg.RootDir, cfg.DownloadsDir); err != nil {
		return nil, nil, err
	}

	entries, err := os.ReadDir(cfg.DownloadsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("listing downloads directory: %w", err)
	}

	targets := []string{}
	for _, entry := range entries {
		if name != "" && archiveBase(entry.Name()) != name {
			continue
		}
		target := filepath.Join(cfg.DownloadsDir, entry.Name())
		if err := ensureSubPath(cfg.DownloadsDir, target); err != nil {
			return nil, nil, err
		}
		targets = append(targets, target)
	}

	// Staging directories left behind by an interrupted library extraction.
	libEntries, err := os.ReadDir(cfg.LibDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("listing library directory: %w", err)
	}
	for _, entry := range libEntries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), ".extract-") {
			continue
		}
		if name != "" && !strings.HasPrefix(entry.Name(), "."+name+".") {
			continue
		}
		targets = append(targets, filepath.Join(cfg.LibDir, entry.Name()))
	}

	return targets, nil, nil
}

func datasetTargets(cfg *config.ProvisioningConfig, name string) ([]string, []string, error) {
	if err := ensureSubPath(cfg.RootDir, cfg.DatasetDir); err != nil {
		return nil, nil, err
	}

	if name != "" {
		target := filepath.Join(cfg.DatasetDir, name)
		if err := ensureSubPath(cfg.DatasetDir, target); err != nil {
			return nil, nil, err
		}
		exists, err := fileutil.PathExists(target)
		if err != nil {
			return nil, nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if !exists {
			return nil, []string{target}, nil
		}
		return []string{target}, nil, nil
	}

	entries, err := os.ReadDir(cfg.DatasetDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("listing dataset directory: %w", err)
	}

	targets := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		targets = append(targets, filepath.Join(cfg.DatasetDir, entry.Name()))
	}
	return targets, nil, nil
}

func ensureSubPath(base, target string) error {
	ok, err := fileutil.IsSubPath(base, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("refusing to operate on %s because it is outside %s", target, base)
	}
	return nil
}

// dropStamps removes the stamps of a dataset directory before its content, so
// a removal that stops halfway leaves the dataset reading as not installed.
func dropStamps(stamps *statestore.Store, datasetDir, target string) error {
	inside, err := fileutil.IsSubPath(datasetDir, target)
	if err != nil || !inside || target == filepath.Clean(datasetDir) {
		return err
	}
	if info, err := os.Lstat(target); err != nil || !info.IsDir() {
		return nil
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return fmt.Errorf("listing %s: %w", target, err)
	}
	for _, entry := range entries {
		name, ok := strings.CutPrefix(entry.Name(), ".")
		if !ok || name == "" || entry.IsDir() {
			continue
		}
		if err := stamps.RemoveStamp(target, name); err != nil {
			return fmt.Errorf("removing stamp %s: %w", statestore.StampPath(target, name), err)
		}
	}
	return nil
}
