package pagetpl

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultURL is the source page mirrored when no URL is given.
const DefaultURL = "https://www.example.com/"

// ConfigurationError reports a missing or invalid required setting. It is
// checked before any network or filesystem work.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pagetpl: configuration: %s %s", e.Field, e.Reason)
}

// PlaceholderConfig mirrors transform.Placeholders for the YAML config file.
type PlaceholderConfig struct {
	Title string `yaml:"title,omitempty"`
	Head  string `yaml:"head,omitempty"`
	Body  string `yaml:"body,omitempty"`
}

// Config holds all build settings.
type Config struct {
	// URL is the source page. Default: DefaultURL.
	URL string `yaml:"url"`
	// PublicDir is the absolute local mirror root. Required.
	PublicDir string `yaml:"public_dir"`
	// Output is the template file name, relative to PublicDir unless
	// absolute. Default: "index.tpl".
	Output string `yaml:"output"`
	// Ruleset names a built-in selector/namespace variant. Default:
	// "wordpress-v2". Ignored when RulesetFile is set.
	Ruleset string `yaml:"ruleset"`
	// RulesetFile points at an external ruleset YAML document.
	RulesetFile string `yaml:"ruleset_file,omitempty"`
	// Render fetches the page through headless Chrome instead of plain HTTP.
	Render bool `yaml:"render"`
	// RemoteChrome is the WebSocket URL of an external Chrome instance for
	// Render mode. Empty = launch locally.
	RemoteChrome string `yaml:"remote_chrome,omitempty"`
	// Minify compacts the emitted template.
	Minify bool `yaml:"minify"`
	// CSSDepth is the number of on-disk CSS scan passes. Default: 1.
	CSSDepth int `yaml:"css_depth"`
	// Concurrency bounds parallel asset downloads. Default: 8.
	Concurrency int `yaml:"concurrency"`
	// Timeout bounds each HTTP request. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
	// UserAgent sent with all requests.
	UserAgent string `yaml:"user_agent"`
	// ManifestDB, when set, is the path of the SQLite run manifest.
	ManifestDB string `yaml:"manifest_db,omitempty"`
	// Placeholders override the default Go-template injection tokens.
	Placeholders PlaceholderConfig `yaml:"placeholders"`
}

func (c *Config) defaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Output == "" {
		c.Output = "index.tpl"
	}
	if c.Ruleset == "" {
		c.Ruleset = "wordpress-v2"
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
	if c.UserAgent == "" {
		c.UserAgent = "pagetpl/1.0"
	}
}

func (c *Config) validate() error {
	if c.PublicDir == "" {
		return &ConfigurationError{Field: "public_dir", Reason: "is required"}
	}
	return nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
