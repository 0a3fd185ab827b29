// Package pagetpl turns one remote HTML page into a reusable template plus a
// local mirror of every same-origin static asset the page references,
// preserving the site's path layout so the result can be served from the
// caller's own origin.
package pagetpl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/net/html"

	"github.com/marell/pagetpl/fetch"
	"github.com/marell/pagetpl/manifest"
	"github.com/marell/pagetpl/mirror"
	"github.com/marell/pagetpl/transform"
)

// PageFetcher retrieves the source page body.
type PageFetcher func(ctx context.Context, url string) ([]byte, error)

// Builder runs the full pipeline: fetch → clean up → mirror assets →
// inject placeholders → serialize → write template.
type Builder struct {
	cfg      *Config
	logger   *slog.Logger
	fetcher  PageFetcher
	manifest *manifest.Store
}

// Option customises a Builder.
type Option func(*Builder)

// WithManifest records downloads into the given store.
func WithManifest(s *manifest.Store) Option {
	return func(b *Builder) { b.manifest = s }
}

// WithPageFetcher replaces the page fetcher (tests, custom transports).
func WithPageFetcher(f PageFetcher) Option {
	return func(b *Builder) { b.fetcher = f }
}

// New creates a Builder. Configuration is validated here, before any network
// or filesystem work.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Builder, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	b := &Builder{cfg: cfg, logger: logger}
	for _, o := range opts {
		o(b)
	}
	if b.fetcher == nil {
		b.fetcher = b.defaultFetcher()
	}
	return b, nil
}

func (b *Builder) defaultFetcher() PageFetcher {
	if b.cfg.Render {
		return func(ctx context.Context, pageURL string) ([]byte, error) {
			r := fetch.NewRenderer(fetch.RenderConfig{
				RemoteURL:  b.cfg.RemoteChrome,
				NavTimeout: b.cfg.Timeout,
			})
			if err := r.Start(); err != nil {
				return nil, err
			}
			defer r.Close()
			return r.Fetch(ctx, pageURL)
		}
	}
	f := fetch.New(fetch.Config{Timeout: b.cfg.Timeout, UserAgent: b.cfg.UserAgent})
	return f.Fetch
}

// Build executes one run and returns the path of the written template. On
// any error, no template file is written and the run's partial mirror can be
// completed cheaply by re-invoking (already-mirrored assets are skipped).
func (b *Builder) Build(ctx context.Context) (string, error) {
	rs, err := b.ruleset()
	if err != nil {
		return "", err
	}

	origin, err := url.Parse(b.cfg.URL)
	if err != nil || origin.Host == "" {
		return "", &ConfigurationError{Field: "url", Reason: fmt.Sprintf("invalid: %q", b.cfg.URL)}
	}
	origin = &url.URL{Scheme: origin.Scheme, Host: origin.Host}

	b.logger.Info("pagetpl: fetching page", "url", b.cfg.URL, "ruleset", rs.Name)
	body, err := b.fetcher(ctx, b.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	if err := transform.Apply(doc, rs, origin); err != nil {
		return "", err
	}

	runID, err := b.manifest.BeginRun(ctx, b.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("manifest: %w", err)
	}

	eng := mirror.New(mirror.Config{
		Origin:      origin,
		PublicDir:   b.cfg.PublicDir,
		Namespaces:  rs.Namespaces,
		CSSDepth:    b.cfg.CSSDepth,
		Concurrency: b.cfg.Concurrency,
		Timeout:     b.cfg.Timeout,
		UserAgent:   b.cfg.UserAgent,
		OnDownload: func(fetchURL, localPath string, size int64, sha string) {
			err := b.manifest.RecordAsset(ctx, runID, manifest.Asset{
				URL:       fetchURL,
				LocalPath: localPath,
				Bytes:     size,
				SHA256:    sha,
				FetchedAt: time.Now(),
			})
			if err != nil {
				b.logger.Warn("pagetpl: manifest record failed", "url", fetchURL, "error", err)
			}
		},
		Logger: b.logger,
	})

	if err := eng.Run(ctx, doc); err != nil {
		_ = b.manifest.FinishRun(ctx, runID, "failed")
		return "", err
	}
	if err := b.manifest.FinishRun(ctx, runID, "completed"); err != nil {
		b.logger.Warn("pagetpl: manifest finish failed", "error", err)
	}

	transform.Inject(doc, rs, transform.Placeholders{
		Title: b.cfg.Placeholders.Title,
		Head:  b.cfg.Placeholders.Head,
		Body:  b.cfg.Placeholders.Body,
	})

	out, err := transform.Serialize(doc)
	if err != nil {
		return "", err
	}
	if b.cfg.Minify {
		if out, err = transform.Minify(out); err != nil {
			return "", fmt.Errorf("minify: %w", err)
		}
	}

	outPath := b.cfg.Output
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(b.cfg.PublicDir, outPath)
	}
	if err := writeFileAtomic(outPath, out); err != nil {
		return "", err
	}

	b.logger.Info("pagetpl: template written", "path", outPath, "downloads", eng.Downloads())
	return outPath, nil
}

func (b *Builder) ruleset() (*transform.Ruleset, error) {
	if b.cfg.RulesetFile != "" {
		return transform.LoadRulesetFile(b.cfg.RulesetFile)
	}
	return transform.LoadRuleset(b.cfg.Ruleset)
}

// writeFileAtomic writes via a temp file and rename so a failed run never
// leaves a half-written template behind.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tpl-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
