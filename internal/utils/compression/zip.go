package compression

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
)

func extractZip(archivePath, destDir string, report func(n int64, total int64)) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if zr != nil {
			zr.Close()
		}
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	var total int64
	for _, f := range zr.File {
		total += int64(f.UncompressedSize64)
	}
	report(0, total)

	for _, f := range zr.File {
		target, err := safeTarget(destDir, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/"):
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		case mode&os.ModeSymlink != 0:
			if err := extractZipSymlink(f, destDir, target); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		err = writeFile(target, &countingReader{r: rc, add: func(n int64) { report(n, total) }}, mode)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractZipSymlink(f *zip.File, destDir, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	link, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return err
	}
	if err := safeSymlink(destDir, target, string(link)); err != nil {
		return err
	}
	return os.Symlink(string(link), target)
}
