package compression

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// ErrExtraction is wrapped by every error Extract returns.
var ErrExtraction = errors.New("extraction failed")

// Format names an archive layout.
type Format string

const (
	Zip    Format = "zip"
	TarGz  Format = "tar.gz"
	TarXz  Format = "tar.xz"
	TarZst Format = "tar.zst"
	TarBz2 Format = "tar.bz2"
)

// Formats returns the supported archive formats.
func Formats() []Format {
	return []Format{Zip, TarGz, TarXz, TarZst, TarBz2}
}

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGz},
	{".tgz", TarGz},
	{".tar.xz", TarXz},
	{".txz", TarXz},
	{".tar.zst", TarZst},
	{".tar.zstd", TarZst},
	{".tar.bz2", TarBz2},
	{".tbz2", TarBz2},
	{".zip", Zip},
}

// ParseFormat validates a format name from configuration. The empty string
// means zip.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return Zip, nil
	}
	for _, f := range Formats() {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported archive format: %s", s)
}

// DetectFormat derives the archive format from a file name or URL path.
func DetectFormat(name string) (Format, error) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, nil
		}
	}
	return "", fmt.Errorf("cannot detect archive format of %s", name)
}

// Progress receives the cumulative number of processed bytes and the total.
type Progress func(done, total int64)

// Extractor unpacks archives into a directory.
type Extractor struct {
	// Progress is called as bytes are processed. When nil a progress bar is
	// drawn on Output.
	Progress Progress
	// Output receives the default progress bar; nil means os.Stderr.
	Output io.Writer
}

// Default is the extractor used by Extract.
var Default = &Extractor{}

// Extract unpacks archivePath into destDir with the Default extractor.
func Extract(archivePath, destDir string, format Format) error {
	return Default.Extract(archivePath, destDir, format)
}

// Extract creates destDir and unpacks archivePath into it. An empty format is
// detected from the archive name. On failure destDir is removed entirely so
// a partial tree is never left behind, and the returned error wraps
// ErrExtraction.
func (e *Extractor) Extract(archivePath, destDir string, format Format) (err error) {
	log := logger.Logger()

	if format == "" {
		if format, err = DetectFormat(archivePath); err != nil {
			return fmt.Errorf("%w: %w", ErrExtraction, err)
		}
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrExtraction, destDir, err)
	}

	defer func() {
		if err == nil {
			return
		}
		log.Debugf("removing partially extracted %s", destDir)
		if rmErr := os.RemoveAll(destDir); rmErr != nil {
			log.Warnf("failed to remove %s after extraction error: %v", destDir, rmErr)
		}
		err = fmt.Errorf("%w: %s: %w", ErrExtraction, filepath.Base(archivePath), err)
	}()

	log.Infof("Unpacking %s to %s", filepath.Base(archivePath), destDir)
	report, finish := e.progress(filepath.Base(archivePath))
	defer finish()

	if format == Zip {
		return extractZip(archivePath, destDir, report)
	}
	return extractTar(archivePath, destDir, format, report)
}

// safeTarget joins an archive entry name onto destDir and rejects names
// that would land outside of it.
func safeTarget(destDir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty entry name")
	}
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !isWithin(destDir, target) {
		return "", fmt.Errorf("entry %q escapes destination directory", name)
	}
	return target, nil
}

func isWithin(base, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// safeSymlink validates that a link created at target pointing to linkname
// resolves inside destDir.
func safeSymlink(destDir, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink %s has absolute target %q", target, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), linkname)
	if !isWithin(destDir, resolved) {
		return fmt.Errorf("symlink %s points outside destination directory", target)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if mode.Perm() == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return out.Close()
}
