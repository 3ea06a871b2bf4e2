package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkPolicy decides what happens when a state, env or download path
// turns out to be a symlink.
type SymlinkPolicy int

const (
	// RejectSymlinks fails on any symlink.
	RejectSymlinks SymlinkPolicy = iota
	// ResolveSymlinks follows the link and operates on its target.
	ResolveSymlinks
	// AllowSymlinks uses the path as given.
	AllowSymlinks
)

func (p SymlinkPolicy) valid() bool {
	return p >= RejectSymlinks && p <= AllowSymlinks
}

// SafeFileInfo is the result of a symlink check.
type SafeFileInfo struct {
	OriginalPath string
	ResolvedPath string
	IsSymlink    bool
	FileInfo     os.FileInfo
}

// CheckSymlink lstat's path and applies policy to it.
func CheckSymlink(path string, policy SymlinkPolicy) (*SafeFileInfo, error) {
	if !policy.valid() {
		return nil, fmt.Errorf("invalid symlink policy: %d", policy)
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info for %s: %w", path, err)
	}

	info := &SafeFileInfo{
		OriginalPath: path,
		ResolvedPath: path,
		IsSymlink:    fi.Mode()&os.ModeSymlink != 0,
		FileInfo:     fi,
	}
	if !info.IsSymlink || policy == AllowSymlinks {
		return info, nil
	}
	if policy == RejectSymlinks {
		return nil, fmt.Errorf("symlinks are not allowed: %s", path)
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symlink %s: %w", path, err)
	}
	targetInfo, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("failed to access symlink target %s: %w", target, err)
	}
	info.ResolvedPath = target
	info.FileInfo = targetInfo
	return info, nil
}

// SafeReadFile reads path after applying policy.
func SafeReadFile(path string, policy SymlinkPolicy) ([]byte, error) {
	info, err := CheckSymlink(path, policy)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(info.ResolvedPath)
}

// resolveForWrite applies policy to an existing path or, for a new file, to
// its parent directory, and returns the path writes should go to.
func resolveForWrite(path string, policy SymlinkPolicy) (string, error) {
	if !policy.valid() {
		return "", fmt.Errorf("invalid symlink policy: %d", policy)
	}

	if _, err := os.Lstat(path); err == nil {
		info, err := CheckSymlink(path, policy)
		if err != nil {
			return "", fmt.Errorf("existing file symlink check failed: %w", err)
		}
		path = info.ResolvedPath
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return path, nil
	}
	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		return path, nil
	}
	info, err := CheckSymlink(dir, policy)
	if err != nil {
		return "", fmt.Errorf("parent directory symlink check failed: %w", err)
	}
	if info.ResolvedPath != dir {
		path = filepath.Join(info.ResolvedPath, filepath.Base(path))
	}
	return path, nil
}

// SafeWriteFile replaces path with data. The content goes to a temporary file
// in the same directory first and is renamed into place, so readers never
// observe a partially written file.
func SafeWriteFile(path string, data []byte, perm os.FileMode, policy SymlinkPolicy) error {
	target, err := resolveForWrite(path, policy)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	return nil
}

// SafeOpenFile opens path with flag after applying policy. When O_CREATE is
// set and the file does not exist, only its parent directory is checked.
func SafeOpenFile(path string, flag int, perm os.FileMode, policy SymlinkPolicy) (*os.File, error) {
	if flag&os.O_CREATE != 0 {
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			target, err := resolveForWrite(path, policy)
			if err != nil {
				return nil, err
			}
			return os.OpenFile(target, flag, perm)
		}
	}

	info, err := CheckSymlink(path, policy)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(info.ResolvedPath, flag, perm)
}
