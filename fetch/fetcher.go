// Package fetch retrieves the source page, either over plain HTTP or through
// a headless browser for pages whose markup is built by JavaScript.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config configures the HTTP fetcher.
type Config struct {
	Timeout  time.Duration // per-request timeout. Default: 30s.
	MaxBytes int64         // max response body size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "pagetpl/1.0"
	}
}

// Fetcher performs HTTP page requests.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher with a redirect cap.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves a URL and returns its body. Non-2xx statuses are errors;
// the body read is bounded by MaxBytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
