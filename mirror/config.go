package mirror

import (
	"log/slog"
	"net/url"
	"time"
)

// DefaultNamespaces are the asset path prefixes mirrored by default: the
// platform content and core-includes directories of a WordPress site.
// Same-origin references outside these prefixes are left pointing at the
// original site.
var DefaultNamespaces = []string{"/wp-content/", "/wp-includes/"}

// Config configures one mirroring run.
type Config struct {
	// Origin is the scheme+host of the fetched page. Required.
	Origin *url.URL
	// PublicDir is the absolute local mirror root. Required.
	PublicDir string
	// Namespaces are the recognized asset path prefixes.
	// Default: DefaultNamespaces.
	Namespaces []string
	// CSSDepth is the number of passes over on-disk CSS files. Each pass can
	// discover stylesheets downloaded by the previous one. Default: 1, the
	// single non-recursive pass of the historical behaviour.
	CSSDepth int
	// Concurrency bounds parallel downloads within a phase. Default: 8.
	Concurrency int
	// Timeout bounds each asset request. Default: 30s.
	Timeout time.Duration
	// UserAgent sent with asset requests.
	UserAgent string
	// OnDownload, when set, observes each completed download (manifest
	// recording). It never influences mirroring decisions.
	OnDownload func(fetchURL, localPath string, size int64, sha string)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.Namespaces) == 0 {
		c.Namespaces = DefaultNamespaces
	}
	if c.CSSDepth <= 0 {
		c.CSSDepth = 1
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
