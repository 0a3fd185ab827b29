package mirror

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Downloader streams remote assets to disk. It is idempotent: a destination
// that already exists is never re-fetched or re-validated; presence on disk
// is the durable "already mirrored" signal across runs.
type Downloader struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	// OnDownload, when set, observes each completed download. Must be set
	// before the first Download call; invoked under the per-path lock.
	OnDownload func(fetchURL, localPath string, size int64, sha string)

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	fetched atomic.Int64
}

// NewDownloader creates a Downloader. timeout bounds each request; zero means
// 30s. Safe for concurrent use: the exists-check and the write are atomic per
// destination path.
func NewDownloader(timeout time.Duration, userAgent string, logger *slog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
		locks:     map[string]*sync.Mutex{},
	}
}

// Fetched returns the number of network downloads performed (skips excluded).
func (d *Downloader) Fetched() int64 { return d.fetched.Load() }

// Download mirrors fetchURL to localPath. Returns nil without a network call
// when localPath already exists. The body is written to a temporary file and
// renamed into place on full success only, so a failed transfer never leaves
// a partial file that a later run would mistake for "already mirrored".
func (d *Downloader) Download(ctx context.Context, fetchURL, localPath string) error {
	lock := d.pathLock(localPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(localPath); err == nil {
		d.logger.Debug("mirror: already present", "path", localPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return &DownloadError{URL: fetchURL, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return &DownloadError{URL: fetchURL, Cause: err}
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &DownloadError{URL: fetchURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DownloadError{URL: fetchURL, Status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".pagetpl-*")
	if err != nil {
		return &DownloadError{URL: fetchURL, Cause: err}
	}
	sum := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, sum), resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &DownloadError{URL: fetchURL, Cause: fmt.Errorf("copy body: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &DownloadError{URL: fetchURL, Cause: err}
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		os.Remove(tmp.Name())
		return &DownloadError{URL: fetchURL, Cause: err}
	}

	d.fetched.Add(1)
	d.logger.Debug("mirror: downloaded", "url", fetchURL, "path", localPath, "bytes", size)
	if d.OnDownload != nil {
		d.OnDownload(fetchURL, localPath, size, fmt.Sprintf("%x", sum.Sum(nil)))
	}
	return nil
}

func (d *Downloader) pathLock(path string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[path]
	if !ok {
		l = &sync.Mutex{}
		d.locks[path] = l
	}
	return l
}
