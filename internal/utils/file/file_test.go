package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestIsSubPath(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"same dir", base, true},
		{"child", filepath.Join(base, "lib"), true},
		{"nested child", filepath.Join(base, "lib", "downloads", "x.zip"), true},
		{"parent", filepath.Dir(base), false},
		{"sibling", filepath.Join(filepath.Dir(base), "other"), false},
		{"escape via dotdot", filepath.Join(base, "..", "evil"), false},
		{"dotdot prefixed name stays inside", filepath.Join(base, "..data"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsSubPath(base, tt.target)
			if err != nil {
				t.Fatalf("IsSubPath returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsSubPath(%s, %s) = %v, want %v", base, tt.target, got, tt.want)
			}
		})
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "present")
	if err := os.WriteFile(existing, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if ok, err := PathExists(existing); err != nil || !ok {
		t.Errorf("expected existing file to be found, got %v %v", ok, err)
	}
	if ok, err := PathExists(filepath.Join(dir, "absent")); err != nil || ok {
		t.Errorf("expected absent file to be missing, got %v %v", ok, err)
	}
	if _, err := PathExists(""); err == nil {
		t.Error("expected error for empty path")
	}

	dangling := filepath.Join(dir, "dangling")
	if err := os.Symlink(filepath.Join(dir, "gone"), dangling); err != nil {
		t.Fatal(err)
	}
	if ok, err := PathExists(dangling); err != nil || !ok {
		t.Errorf("a dangling symlink should count as present, got %v %v", ok, err)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "nested", "dir", "dst.bin")
	content := []byte("artifact payload")

	if err := os.WriteFile(src, content, 0640); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read copy: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("copy content mismatch: %q", got)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("expected mode 0640, got %v", info.Mode().Perm())
	}
}

func TestCopyFileErrors(t *testing.T) {
	dir := t.TempDir()

	if err := CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "out")); err == nil {
		t.Error("expected error for missing source")
	}
	if err := CopyFile(dir, filepath.Join(dir, "out")); err == nil {
		t.Error("expected error when source is a directory")
	}
}

func TestCopyFileConcurrent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.WriteFile(src, []byte("shared"), 0644); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- CopyFile(src, filepath.Join(dir, "copies", string(rune('a'+i))))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent copy failed: %v", err)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatal(err)
	}
	if ok, _ := PathExists(dir); !ok {
		t.Error("expected directory to exist")
	}
}
