package provision

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/megaguards/mg-setup/internal/config"
	"github.com/megaguards/mg-setup/internal/fetcher"
	"github.com/megaguards/mg-setup/internal/registry"
	"github.com/megaguards/mg-setup/internal/statestore"
	"github.com/megaguards/mg-setup/internal/utils/compression"
)

const (
	libURL  = "https://example.com/libx.zip"
	dataURL = "https://example.com/data-y.zip"
)

// fakeFetcher serves fixed bodies by URL and counts calls.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, urls []string, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, u := range urls {
		body, ok := f.bodies[u]
		if !ok {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		return os.WriteFile(dest, body, 0644)
	}
	return fmt.Errorf("%w: all sources failed for %s", fetcher.ErrNetwork, filepath.Base(dest))
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingExtractor wraps the real extractor and counts calls.
type countingExtractor struct {
	inner *compression.Extractor
	calls int
}

func (c *countingExtractor) Extract(archivePath, destDir string, format compression.Format) error {
	c.calls++
	return c.inner.Extract(archivePath, destDir, format)
}

type fixture struct {
	root      string
	cfg       *config.ProvisioningConfig
	engine    *Engine
	fetcher   *fakeFetcher
	extractor *countingExtractor
	env       map[string]string
	states    map[string][]State
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sha1Of(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func registryYAML(libSHA, dataSHA string) string {
	return fmt.Sprintf(`
version: 1
artifacts:
  - name: lib-x
    kind: library
    env_var: LIB_X
    install_name: libx
    variants:
      linux:
        url: %s
        sha: %s
        compressed: true
        suffix: .so
  - name: data-y
    kind: dataset
    path: test
    variants:
      linux:
        url: %s
        sha: %s
        compressed: true
  - name: darwin-only
    kind: library
    env_var: DARWIN_ONLY
    install_name: libdarwin
    variants:
      darwin:
        url: https://example.com/libdarwin.zip
        sha: 1f04bf2fa7d99b496cf25e3103e720386157ce33
        compressed: true
        suffix: .dylib
`, libURL, libSHA, dataURL, dataSHA)
}

func newFixture(t *testing.T, regYAML string, bodies map[string][]byte) *fixture {
	t.Helper()
	reg, err := registry.LoadBytes([]byte(regYAML))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	root := t.TempDir()
	cfg := config.NewProvisioningConfig(root)
	cfg.Platform = "linux"

	e, err := New(cfg, reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f := &fixture{
		root:      root,
		cfg:       cfg,
		engine:    e,
		fetcher:   &fakeFetcher{bodies: bodies},
		extractor: &countingExtractor{inner: &compression.Extractor{Progress: func(int64, int64) {}}},
		env:       map[string]string{},
		states:    map[string][]State{},
	}
	e.Fetcher = f.fetcher
	e.Extractor = f.extractor
	e.Store.LookupEnv = func(name string) (string, bool) {
		v, ok := f.env[name]
		return v, ok
	}
	e.Observer = func(artifact string, from, to State) {
		f.states[artifact] = append(f.states[artifact], to)
	}
	return f
}

// standardFixture serves a good library and dataset archive.
func standardFixture(t *testing.T) (*fixture, []byte, []byte) {
	libZip := zipBytes(t, map[string]string{"libx.so": "ELF library"})
	dataZip := zipBytes(t, map[string]string{"bfs/graph4096.txt": "4096", "hotspot/temp_64": "64"})
	f := newFixture(t, registryYAML(sha1Of(libZip), sha1Of(dataZip)), map[string][]byte{
		libURL:  libZip,
		dataURL: dataZip,
	})
	return f, libZip, dataZip
}

func (f *fixture) readEnv(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.cfg.EnvFile)
	if err != nil {
		t.Fatalf("reading env file: %v", err)
	}
	return string(data)
}

// snapshot lists every path below root with size and mode, for purity checks.
func snapshot(t *testing.T, root string) string {
	t.Helper()
	var b strings.Builder
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s %d %s %d\n", path, info.Size(), info.Mode(), info.ModTime().UnixNano())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return b.String()
}

func assertNoStagingFiles(t *testing.T, dir string) {
	t.Helper()
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && (strings.Contains(d.Name(), ".part-") || strings.Contains(d.Name(), ".extract-")) {
			t.Errorf("staging leftover %s", path)
		}
		return nil
	})
}

func TestEnsureFreshLibraryInstall(t *testing.T) {
	f, libZip, _ := standardFixture(t)

	ok, err := f.engine.Ensure(context.Background(), Request{Artifact: "lib-x"})
	if err != nil || !ok {
		t.Fatalf("Ensure = %v, %v", ok, err)
	}

	installed := filepath.Join(f.cfg.LibDir, "libx.so")
	if data, err := os.ReadFile(installed); err != nil || string(data) != "ELF library" {
		t.Errorf("library not installed: %q %v", data, err)
	}
	blob, err := os.ReadFile(filepath.Join(f.cfg.DownloadsDir, "libx.zip"))
	if err != nil || !bytes.Equal(blob, libZip) {
		t.Errorf("archive not kept in downloads: %v", err)
	}

	want := statestore.EnvHeader + "\nLIB_X=" + installed + "\n"
	if got := f.readEnv(t); got != want {
		t.Errorf("env file = %q, want %q", got, want)
	}

	wantStates := []State{Checking, Missing, Fetching, Verifying, Extracting, Recording, Satisfied}
	if fmt.Sprint(f.states["lib-x"]) != fmt.Sprint(wantStates) {
		t.Errorf("states = %v, want %v", f.states["lib-x"], wantStates)
	}
	assertNoStagingFiles(t, f.root)
}

func TestEnsureIsIdempotent(t *testing.T) {
	f, _, _ := standardFixture(t)
	ctx := context.Background()

	for _, name := range []string{"lib-x", "data-y"} {
		for i := 0; i < 2; i++ {
			ok, err := f.engine.Ensure(ctx, Request{Artifact: name})
			if err != nil || !ok {
				t.Fatalf("%s call %d: %v, %v", name, i+1, ok, err)
			}
		}
	}

	if f.fetcher.Calls() != 2 {
		t.Errorf("expected one fetch per artifact, got %d", f.fetcher.Calls())
	}
	if f.extractor.calls != 2 {
		t.Errorf("expected one extraction per artifact, got %d", f.extractor.calls)
	}
	if strings.Count(f.readEnv(t), "LIB_X=") != 1 {
		t.Errorf("env var duplicated:\n%s", f.readEnv(t))
	}
	if got := f.states["data-y"][len(f.states["data-y"])-2:]; fmt.Sprint(got) != fmt.Sprint([]State{Checking, Satisfied}) {
		t.Errorf("second call should go straight to satisfied, got %v", got)
	}
}

func TestEnsureDatasetWritesStamp(t *testing.T) {
	f, _, dataZip := standardFixture(t)

	ok, err := f.engine.Ensure(context.Background(), Request{Artifact: "data-y"})
	if err != nil || !ok {
		t.Fatalf("Ensure = %v, %v", ok, err)
	}

	target := filepath.Join(f.cfg.DatasetDir, "test")
	if _, err := os.Stat(filepath.Join(target, "bfs", "graph4096.txt")); err != nil {
		t.Errorf("dataset not extracted: %v", err)
	}
	stamp, err := os.ReadFile(filepath.Join(target, ".data-y"))
	if err != nil || string(stamp) != sha1Of(dataZip) {
		t.Errorf("stamp = %q, %v", stamp, err)
	}
	if _, err := os.Stat(f.cfg.EnvFile); !os.IsNotExist(err) {
		t.Error("datasets must not touch the env file")
	}
}

func TestCheckOnlyIsPure(t *testing.T) {
	f, _, _ := standardFixture(t)
	ctx := context.Background()

	check := func(want bool) {
		t.Helper()
		for _, name := range []string{"lib-x", "data-y"} {
			before := snapshot(t, f.root)
			ok, err := f.engine.Ensure(ctx, Request{Artifact: name, CheckOnly: true, Force: true})
			if err != nil {
				t.Fatalf("check-only %s: %v", name, err)
			}
			if ok != want {
				t.Errorf("check-only %s = %v, want %v", name, ok, want)
			}
			if after := snapshot(t, f.root); after != before {
				t.Errorf("check-only %s changed the filesystem:\nbefore:\n%s\nafter:\n%s", name, before, after)
			}
		}
	}

	check(false)
	for _, name := range []string{"lib-x", "data-y"} {
		if _, err := f.engine.Ensure(ctx, Request{Artifact: name}); err != nil {
			t.Fatal(err)
		}
	}
	calls := f.fetcher.Calls()
	check(true)
	if f.fetcher.Calls() != calls {
		t.Error("check-only must not fetch")
	}
}

func TestEnsureHashGate(t *testing.T) {
	goodZip := zipBytes(t, map[string]string{"libx.so": "good"})
	badZip := zipBytes(t, map[string]string{"libx.so": "tampered"})

	t.Run("mismatched local blob is refetched", func(t *testing.T) {
		f := newFixture(t, registryYAML(sha1Of(goodZip), sha1Of(goodZip)), map[string][]byte{libURL: goodZip})
		blob := filepath.Join(f.cfg.DownloadsDir, "libx.zip")
		if err := os.MkdirAll(f.cfg.DownloadsDir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(blob, badZip, 0644); err != nil {
			t.Fatal(err)
		}

		ok, err := f.engine.Ensure(context.Background(), Request{Artifact: "lib-x"})
		if err != nil || !ok {
			t.Fatalf("Ensure = %v, %v", ok, err)
		}
		if f.fetcher.Calls() != 1 {
			t.Errorf("expected a re-fetch, got %d fetches", f.fetcher.Calls())
		}
		if data, _ := os.ReadFile(filepath.Join(f.cfg.LibDir, "libx.so")); string(data) != "good" {
			t.Errorf("installed library came from the stale blob: %q", data)
		}
	})

	t.Run("mismatched download fails", func(t *testing.T) {
		f := newFixture(t, registryYAML(sha1Of(goodZip), sha1Of(goodZip)), map[string][]byte{libURL: badZip})

		ok, err := f.engine.Ensure(context.Background(), Request{Artifact: "lib-x"})
		if ok || !errors.Is(err, ErrIntegrity) {
			t.Fatalf("expected ErrIntegrity, got %v, %v", ok, err)
		}
		var ie *IntegrityError
		if !errors.As(err, &ie) || ie.Actual != sha1Of(badZip) || ie.Name != "lib-x" {
			t.Errorf("unexpected integrity error: %+v", err)
		}
		if f.extractor.calls != 0 {
			t.Error("bad data must not be extracted")
		}
		if _, err := os.Stat(filepath.Join(f.cfg.DownloadsDir, "libx.zip")); !os.IsNotExist(err) {
			t.Error("mismatched download must not be kept")
		}
		if _, err := os.Stat(f.cfg.EnvFile); !os.IsNotExist(err) {
			t.Error("nothing may be recorded after an integrity failure")
		}
		if last := f.states["lib-x"][len(f.states["lib-x"])-1]; last != Failed {
			t.Errorf("expected FAILED, got %s", last)
		}
		assertNoStagingFiles(t, f.root)
	})
}

func TestEnsureStaleStamp(t *testing.T) {
	f, _, dataZip := standardFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ensure(ctx, Request{Artifact: "data-y"}); err != nil {
		t.Fatal(err)
	}

	blob := filepath.Join(f.cfg.DownloadsDir, "data-y.zip")
	if err := os.WriteFile(blob, []byte("deadbeef"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := f.engine.Ensure(ctx, Request{Artifact: "data-y", CheckOnly: true})
	if err != nil || ok {
		t.Fatalf("stale stamp must read as not installed, got %v, %v", ok, err)
	}

	ok, err = f.engine.Ensure(ctx, Request{Artifact: "data-y"})
	if err != nil || !ok {
		t.Fatalf("Ensure = %v, %v", ok, err)
	}
	if f.fetcher.Calls() != 2 {
		t.Errorf("expected a re-download, got %d fetches", f.fetcher.Calls())
	}
	if data, _ := os.ReadFile(blob); !bytes.Equal(data, dataZip) {
		t.Error("blob was not replaced")
	}
}

func TestEnsureStampRecordingOtherHash(t *testing.T) {
	f, _, _ := standardFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ensure(ctx, Request{Artifact: "data-y"}); err != nil {
		t.Fatal(err)
	}
	stamp := filepath.Join(f.cfg.DatasetDir, "test", ".data-y")
	if err := os.WriteFile(stamp, []byte("abc123"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := f.engine.Ensure(ctx, Request{Artifact: "data-y", CheckOnly: true})
	if err != nil || ok {
		t.Errorf("stamp with a different hash must read as not installed, got %v, %v", ok, err)
	}
}

func corruptZip(t *testing.T, files map[string]string, marker string) []byte {
	t.Helper()
	data := zipBytes(t, files)
	idx := bytes.Index(data, []byte(marker))
	if idx < 0 {
		t.Fatal("marker not found in stored archive")
	}
	data[idx] ^= 0xff
	return data
}

func TestEnsureExtractionRollback(t *testing.T) {
	t.Run("dataset", func(t *testing.T) {
		bad := corruptZip(t, map[string]string{"a.txt": "fine", "b.txt": "CORRUPT-ME"}, "CORRUPT-ME")
		f := newFixture(t, registryYAML(sha1Of(bad), sha1Of(bad)), map[string][]byte{dataURL: bad})
		ctx := context.Background()

		ok, err := f.engine.Ensure(ctx, Request{Artifact: "data-y"})
		if ok || !errors.Is(err, ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v, %v", ok, err)
		}
		var ee *ExtractionError
		if !errors.As(err, &ee) || ee.Name != "data-y" {
			t.Errorf("expected ExtractionError for data-y, got %T", err)
		}
		if _, err := os.Stat(filepath.Join(f.cfg.DatasetDir, "test")); !os.IsNotExist(err) {
			t.Errorf("dataset directory must be removed, stat: %v", err)
		}

		ok, err = f.engine.Ensure(ctx, Request{Artifact: "data-y", CheckOnly: true})
		if err != nil || ok {
			t.Errorf("rolled back dataset must read as not installed, got %v, %v", ok, err)
		}
	})

	t.Run("library", func(t *testing.T) {
		bad := corruptZip(t, map[string]string{"libx.so": "CORRUPT-ME"}, "CORRUPT-ME")
		f := newFixture(t, registryYAML(sha1Of(bad), sha1Of(bad)), map[string][]byte{libURL: bad})
		ctx := context.Background()

		_, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x"})
		if !errors.Is(err, ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
		if _, err := os.Stat(f.cfg.DownloadsDir); err != nil {
			t.Errorf("downloads directory must survive a library rollback: %v", err)
		}
		if _, err := os.Stat(filepath.Join(f.cfg.LibDir, "libx.so")); !os.IsNotExist(err) {
			t.Error("no partial library may be left in lib/")
		}
		if _, err := os.Stat(f.cfg.EnvFile); !os.IsNotExist(err) {
			t.Error("nothing may be recorded after an extraction failure")
		}
		assertNoStagingFiles(t, f.root)

		ok, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x", CheckOnly: true})
		if err != nil || ok {
			t.Errorf("rolled back library must read as not installed, got %v, %v", ok, err)
		}
	})

	t.Run("archive without the library", func(t *testing.T) {
		other := zipBytes(t, map[string]string{"README": "no library here"})
		f := newFixture(t, registryYAML(sha1Of(other), sha1Of(other)), map[string][]byte{libURL: other})

		_, err := f.engine.Ensure(context.Background(), Request{Artifact: "lib-x"})
		if !errors.Is(err, ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
	})
}

func TestEnsureUnsupportedPlatform(t *testing.T) {
	f, _, _ := standardFixture(t)

	_, err := f.engine.Ensure(context.Background(), Request{Artifact: "darwin-only"})
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	var upe *UnsupportedPlatformError
	if !errors.As(err, &upe) || upe.Platform != registry.Linux {
		t.Errorf("unexpected error %v", err)
	}

	entries, err := os.ReadDir(f.root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("filesystem was touched: %v", entries)
	}
	if f.fetcher.Calls() != 0 {
		t.Error("network was touched")
	}
}

func TestEnsureNotFound(t *testing.T) {
	f, _, _ := standardFixture(t)
	_, err := f.engine.Ensure(context.Background(), Request{Artifact: "lib-z"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "lib-z" {
		t.Errorf("expected NotFoundError naming lib-z, got %v", err)
	}
}

func TestEnsureNetworkError(t *testing.T) {
	libZip := zipBytes(t, map[string]string{"libx.so": "x"})
	f := newFixture(t, registryYAML(sha1Of(libZip), sha1Of(libZip)), nil)

	ok, err := f.engine.Ensure(context.Background(), Request{Artifact: "lib-x"})
	if ok || !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v, %v", ok, err)
	}
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.Name != "lib-x" {
		t.Errorf("expected NetworkError for lib-x, got %T", err)
	}
	if f.fetcher.Calls() != 1 {
		t.Errorf("fetch must not be retried inside Ensure, got %d calls", f.fetcher.Calls())
	}
	assertNoStagingFiles(t, f.root)
}

func TestEnsureForceReusesMatchingBlob(t *testing.T) {
	f, _, _ := standardFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x"}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(f.cfg.LibDir, "libx.so")); err != nil {
		t.Fatal(err)
	}

	ok, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x", Force: true})
	if err != nil || !ok {
		t.Fatalf("forced Ensure = %v, %v", ok, err)
	}
	if f.fetcher.Calls() != 1 {
		t.Errorf("matching blob should be reused, got %d fetches", f.fetcher.Calls())
	}
	if f.extractor.calls != 2 {
		t.Errorf("force must re-extract, got %d extractions", f.extractor.calls)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.LibDir, "libx.so")); err != nil {
		t.Errorf("library not restored: %v", err)
	}
}

func TestEnsureMissingLibraryFileIsReinstalled(t *testing.T) {
	f, _, _ := standardFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x"}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(f.cfg.LibDir, "libx.so")); err != nil {
		t.Fatal(err)
	}

	ok, _ := f.engine.Ensure(ctx, Request{Artifact: "lib-x", CheckOnly: true})
	if ok {
		t.Error("library with a missing unpacked file must read as not installed")
	}
	if ok, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x"}); err != nil || !ok {
		t.Fatalf("Ensure = %v, %v", ok, err)
	}
	if f.fetcher.Calls() != 1 {
		t.Errorf("cached archive should be reused, got %d fetches", f.fetcher.Calls())
	}
}

func TestEnsureReassertsLibraryEnvVar(t *testing.T) {
	f, _, _ := standardFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x"}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.cfg.EnvFile, []byte(statestore.EnvHeader+"\nOTHER=1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.readEnv(t), "LIB_X=") {
		t.Error("env var should be recorded again when already installed")
	}
	if f.fetcher.Calls() != 1 {
		t.Error("re-recording must not fetch")
	}
}

func TestEnsureVariantAlgorithm(t *testing.T) {
	libZip := zipBytes(t, map[string]string{"libx.so": "x"})
	raw := sha256.Sum256(libZip)
	sum := hex.EncodeToString(raw[:])
	regYAML := strings.Replace(registryYAML(sum, sha1Of(libZip)), "        suffix: .so\n", "        suffix: .so\n        algorithm: sha256\n", 1)
	f := newFixture(t, regYAML, map[string][]byte{libURL: libZip})

	ok, err := f.engine.Ensure(context.Background(), Request{Artifact: "lib-x"})
	if err != nil || !ok {
		t.Fatalf("Ensure = %v, %v", ok, err)
	}
	ok, err = f.engine.Ensure(context.Background(), Request{Artifact: "lib-x", CheckOnly: true})
	if err != nil || !ok {
		t.Errorf("sha256 variant should validate, got %v, %v", ok, err)
	}
}

func TestEnsureCancelledContext(t *testing.T) {
	f, _, _ := standardFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.engine.Ensure(ctx, Request{Artifact: "lib-x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if f.fetcher.Calls() != 0 {
		t.Error("cancelled call must not fetch")
	}
}

func TestStateString(t *testing.T) {
	if Verifying.String() != "VERIFYING" || State(99).String() != "INVALID" {
		t.Errorf("unexpected state names %s %s", Verifying, State(99))
	}
}
