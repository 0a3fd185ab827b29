package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// RenderConfig configures the headless-browser renderer.
type RenderConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string
	// NavTimeout bounds navigation plus load. Default: 30s.
	NavTimeout time.Duration
}

func (c *RenderConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
}

// Renderer fetches a page through headless Chrome and returns the DOM after
// scripts have run. Use it for sites whose markup is assembled client-side;
// the plain Fetcher is the default.
type Renderer struct {
	cfg     RenderConfig
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRenderer creates a Renderer. Call Start before Fetch.
func NewRenderer(cfg RenderConfig) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

// Start launches or connects to Chrome.
func (r *Renderer) Start() error {
	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		r.lnch = launcher.New().Headless(true)
		u, err := r.lnch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect chrome: %w", err)
	}
	r.browser = b
	return nil
}

// Close disconnects from Chrome and kills a locally launched instance.
func (r *Renderer) Close() {
	if r.browser != nil {
		r.browser.Close()
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
	}
}

// Fetch navigates to pageURL with stealth applied, waits for load, and
// returns the rendered document as HTML.
func (r *Renderer) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if r.browser == nil {
		return nil, fmt.Errorf("renderer: not started")
	}

	page, err := stealth.Page(r.browser)
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", pageURL, err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("serialize DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}
