// Command pagetpl mirrors one remote page into a local directory and emits a
// reusable template.
//
// Usage:
//
//	pagetpl -public-dir ./public -url https://www.example.com/   # one build
//	pagetpl -config pagetpl.yaml                                 # from config file
//	pagetpl -public-dir ./public -serve :8080                    # preview the mirror
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "modernc.org/sqlite"

	"github.com/marell/pagetpl"
	"github.com/marell/pagetpl/manifest"
	"github.com/marell/pagetpl/transform"
)

func main() {
	configPath := flag.String("config", "", "path to pagetpl.yaml config file")
	pageURL := flag.String("url", "", "source page URL")
	publicDir := flag.String("public-dir", "", "local mirror root directory")
	output := flag.String("out", "", "template output path (default index.tpl under -public-dir)")
	ruleset := flag.String("ruleset", "", "built-in ruleset name")
	rulesFile := flag.String("rules-file", "", "external ruleset YAML file")
	listRulesets := flag.Bool("rulesets", false, "list built-in rulesets and exit")
	render := flag.Bool("render", false, "fetch the page through headless Chrome")
	remoteChrome := flag.String("remote-chrome", "", "WebSocket URL of an external Chrome (implies -render)")
	doMinify := flag.Bool("minify", false, "minify the emitted template")
	cssDepth := flag.Int("css-depth", 0, "CSS scan passes over mirrored stylesheets")
	concurrency := flag.Int("concurrency", 0, "max parallel asset downloads")
	manifestDB := flag.String("manifest", "", "path to the SQLite run manifest")
	serveAddr := flag.String("serve", "", "serve -public-dir on this address instead of building")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *listRulesets {
		for _, name := range transform.Rulesets() {
			fmt.Println(name)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(*configPath, func(cfg *pagetpl.Config) {
		if *pageURL != "" {
			cfg.URL = *pageURL
		}
		if *publicDir != "" {
			cfg.PublicDir = *publicDir
		}
		if *output != "" {
			cfg.Output = *output
		}
		if *ruleset != "" {
			cfg.Ruleset = *ruleset
		}
		if *rulesFile != "" {
			cfg.RulesetFile = *rulesFile
		}
		if *render || *remoteChrome != "" {
			cfg.Render = true
			cfg.RemoteChrome = *remoteChrome
		}
		if *doMinify {
			cfg.Minify = true
		}
		if *cssDepth > 0 {
			cfg.CSSDepth = *cssDepth
		}
		if *concurrency > 0 {
			cfg.Concurrency = *concurrency
		}
		if *manifestDB != "" {
			cfg.ManifestDB = *manifestDB
		}
	})
	if err != nil {
		logger.Error("pagetpl: fatal", "error", err)
		os.Exit(1)
	}

	if *serveAddr != "" {
		err = serve(ctx, logger, *serveAddr, cfg.PublicDir)
	} else {
		err = build(ctx, logger, cfg)
	}
	if err != nil {
		logger.Error("pagetpl: fatal", "error", err)
		os.Exit(1)
	}
}

// resolveConfig loads the config file when given, then layers flag overrides
// on top.
func resolveConfig(configPath string, override func(*pagetpl.Config)) (*pagetpl.Config, error) {
	cfg := &pagetpl.Config{}
	if configPath != "" {
		loaded, err := pagetpl.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	override(cfg)
	return cfg, nil
}

func build(ctx context.Context, logger *slog.Logger, cfg *pagetpl.Config) error {
	var opts []pagetpl.Option
	if cfg.ManifestDB != "" {
		store, err := manifest.Open(cfg.ManifestDB)
		if err != nil {
			return fmt.Errorf("open manifest: %w", err)
		}
		defer store.Close()
		opts = append(opts, pagetpl.WithManifest(store))
	}

	b, err := pagetpl.New(cfg, logger, opts...)
	if err != nil {
		return err
	}
	outPath, err := b.Build(ctx)
	if err != nil {
		return err
	}
	fmt.Println(outPath)
	return nil
}

// serve exposes the mirror directory over HTTP for a local preview of the
// downloaded assets and template.
func serve(ctx context.Context, logger *slog.Logger, addr, publicDir string) error {
	if publicDir == "" {
		return errors.New("serve: -public-dir is required")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Handle("/*", http.FileServer(http.Dir(publicDir)))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pagetpl: serving mirror", "addr", addr, "dir", publicDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
