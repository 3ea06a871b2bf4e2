// Package fetcher downloads artifact blobs from their declared sources.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/megaguards/mg-setup/internal/utils/compression"
	"github.com/megaguards/mg-setup/internal/utils/file"
	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/megaguards/mg-setup/internal/utils/network"
	"github.com/megaguards/mg-setup/internal/utils/security"
)

// ErrNetwork is wrapped by every error caused by an unreachable or failing
// source.
var ErrNetwork = errors.New("network error")

// Fetcher places the content of the first working source in urls at dest.
type Fetcher interface {
	Fetch(ctx context.Context, urls []string, dest string) error
}

// HTTPFetcher fetches http, https and file URLs.
type HTTPFetcher struct {
	Client *http.Client
	// Timeout bounds each source attempt; zero means no limit.
	Timeout time.Duration
	// Output receives the download progress bar; nil disables it.
	Output io.Writer
}

// NewHTTPFetcher returns a fetcher drawing progress on stderr.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		Client:  network.NewSecureHTTPClient(0),
		Timeout: timeout,
		Output:  os.Stderr,
	}
}

// Fetch tries each URL in order and stops at the first success. A failed
// attempt never leaves a file at dest.
func (f *HTTPFetcher) Fetch(ctx context.Context, urls []string, dest string) error {
	log := logger.Logger()

	if len(urls) == 0 {
		return fmt.Errorf("%w: no source URL for %s", ErrNetwork, filepath.Base(dest))
	}
	if err := file.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}

	var lastErr error
	for i, u := range urls {
		if i > 0 {
			log.Infof("trying mirror %d of %d: %s", i, len(urls)-1, u)
		}
		err := f.fetchOne(ctx, u, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warnf("download of %s failed: %v", u, err)
		if removeErr := os.Remove(dest); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Warnf("failed to remove partial download %s: %v", dest, removeErr)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: all sources failed for %s: %w", ErrNetwork, filepath.Base(dest), lastErr)
}

func (f *HTTPFetcher) fetchOne(ctx context.Context, rawURL, dest string) error {
	log := logger.Logger()

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "file" {
		log.Debugf("copying %s to %s", u.Path, dest)
		return file.CopyFile(u.Path, dest)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	client := f.Client
	if client == nil {
		client = network.NewSecureHTTPClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := security.SafeOpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644, security.RejectSymlinks)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	var w io.Writer = out
	if f.Output != nil {
		bar := compression.NewBytesBar(f.Output, resp.ContentLength, "downloading "+path.Base(u.Path))
		defer bar.Finish()
		w = io.MultiWriter(out, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("short download of %s: got %d of %d bytes", rawURL, n, resp.ContentLength)
	}

	log.Infof("downloaded %s (%s)", path.Base(u.Path), humanize.Bytes(uint64(n)))
	return nil
}
