// Package mirror implements the asset discovery and mirroring engine: it
// scans a parsed page and raw CSS for locally-scoped asset references,
// rewrites them to root-relative form, and replicates each referenced file
// exactly once under a local public directory, preserving the remote path
// layout.
//
// The pipeline, strictly ordered:
//
//	DOM attribute scan → resolve+download → inline <style> scan →
//	on-disk .css scan (repeated up to CSSDepth passes)
//
// Later phases depend on files written by earlier ones; a stylesheet
// downloaded in an early phase is scanned for nested url() references in a
// later one.
package mirror

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// attrTarget is an element/attribute pair in the fixed recognized scan set.
type attrTarget struct {
	tag  atom.Atom
	attr string
}

// scanTargets covers direct and lazy-load image sources plus stylesheet and
// script references. Anything else in the document is the transform
// pipeline's business, not the mirror's.
var scanTargets = []attrTarget{
	{atom.Img, "src"},
	{atom.Img, "data-src"},
	{atom.Img, "data-lazy-src"},
	{atom.Link, "href"},
	{atom.Script, "src"},
}

// Engine drives one end-to-end mirroring pass.
type Engine struct {
	cfg Config
	res *Resolver
	dl  *Downloader

	mu      sync.Mutex
	seen    map[string]struct{} // fetch URLs processed this run
	scanned map[string]struct{} // mirror-relative CSS paths already scanned
}

// New creates an Engine. The MirrorState (seen-set) is created empty and
// discarded with the Engine; across runs, presence of a file on disk is the
// only "already mirrored" signal.
func New(cfg Config) *Engine {
	cfg.defaults()
	dl := NewDownloader(cfg.Timeout, cfg.UserAgent, cfg.Logger)
	dl.OnDownload = cfg.OnDownload
	return &Engine{
		cfg:     cfg,
		res:     NewResolver(cfg.Origin, cfg.PublicDir, cfg.Namespaces),
		dl:      dl,
		seen:    map[string]struct{}{},
		scanned: map[string]struct{}{},
	}
}

// Resolver exposes the engine's resolver, shared with the transform pipeline
// so link classification uses the same namespace rules.
func (e *Engine) Resolver() *Resolver { return e.res }

// Downloads reports how many network downloads the run performed.
func (e *Engine) Downloads() int64 { return e.dl.Fetched() }

// Run executes the mirroring pass against a mutable parsed document. The
// document's recognized asset attributes are rewritten in place to their
// root-relative local form. Any error aborts the run; there is no partial
// success.
func (e *Engine) Run(ctx context.Context, doc *html.Node) error {
	// Phase 1: attribute scan + in-place rewrite.
	assets, err := e.scanAttrs(doc)
	if err != nil {
		return err
	}

	// Phase 2: zero matches means the source markup changed incompatibly.
	if len(assets) == 0 {
		return &StructuralMismatchError{Reason: "attribute scan matched no asset references"}
	}
	e.cfg.Logger.Info("mirror: attribute scan", "assets", len(assets))

	// Phase 3: download page assets.
	if _, err := e.downloadAll(ctx, assets); err != nil {
		return err
	}

	// Phase 4: inline <style> blocks.
	inline, err := e.resolveRefs(e.inlineStyleRefs(doc))
	if err != nil {
		return err
	}
	if _, err := e.downloadAll(ctx, inline); err != nil {
		return err
	}

	// Phase 5: on-disk CSS files, up to CSSDepth passes or fixed point.
	for pass := 0; pass < e.cfg.CSSDepth; pass++ {
		queued, err := e.scanCSSFiles(ctx)
		if err != nil {
			return err
		}
		if queued == 0 {
			break
		}
	}

	e.cfg.Logger.Info("mirror: run complete", "downloads", e.dl.Fetched())
	return nil
}

// scanAttrs walks the document for the recognized element/attribute set,
// rewrites each eligible reference to its local root-relative form and
// returns the resolved assets to download.
func (e *Engine) scanAttrs(doc *html.Node) ([]*ResolvedAsset, error) {
	var assets []*ResolvedAsset
	var walkErr error

	forEachNode(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || walkErr != nil {
			return
		}
		for _, t := range scanTargets {
			if n.DataAtom != t.tag {
				continue
			}
			for i, a := range n.Attr {
				if a.Key != t.attr || a.Val == "" {
					continue
				}
				ref := AssetReference{Raw: a.Val, Kind: KindDOMAttr}
				if !e.res.Eligible(ref) {
					continue
				}
				resolved, err := e.res.Resolve(ref)
				if err != nil {
					walkErr = err
					return
				}
				n.Attr[i].Val = e.res.LocalRef(resolved)
				assets = append(assets, resolved)
			}
		}
	})

	return assets, walkErr
}

// inlineStyleRefs extracts url() references from every <style> element.
func (e *Engine) inlineStyleRefs(doc *html.Node) []AssetReference {
	var refs []AssetReference
	forEachNode(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Style {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.TextNode {
				continue
			}
			for _, raw := range ExtractCSSRefs(strings.NewReader(c.Data)) {
				refs = append(refs, AssetReference{Raw: raw, Kind: KindInlineStyle})
			}
		}
	})
	return refs
}

// scanCSSFiles runs the extractor over every not-yet-scanned .css file under
// the public directory, resolving relative references against each file's own
// location. Returns the number of newly queued downloads.
func (e *Engine) scanCSSFiles(ctx context.Context) (int, error) {
	var refs []AssetReference

	err := filepath.WalkDir(e.cfg.PublicDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(strings.ToLower(p), ".css") {
			return err
		}
		rel, err := filepath.Rel(e.cfg.PublicDir, p)
		if err != nil {
			return err
		}
		origin := filepath.ToSlash(rel)
		if !e.markScanned(origin) {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		for _, raw := range ExtractCSSRefs(f) {
			refs = append(refs, AssetReference{Raw: raw, Kind: KindCSSFile, OriginFile: origin})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	assets, err := e.resolveRefs(refs)
	if err != nil {
		return 0, err
	}
	return e.downloadAll(ctx, assets)
}

// resolveRefs filters to eligible references and resolves them. A traversal
// failure aborts; foreign and unrecognized references are silently skipped.
func (e *Engine) resolveRefs(refs []AssetReference) ([]*ResolvedAsset, error) {
	var assets []*ResolvedAsset
	for _, ref := range refs {
		if !e.res.Eligible(ref) {
			continue
		}
		resolved, err := e.res.Resolve(ref)
		if err != nil {
			return nil, err
		}
		assets = append(assets, resolved)
	}
	return assets, nil
}

// downloadAll fans the not-yet-seen assets out to the downloader, bounded by
// the configured concurrency. The first failure cancels the rest: a single
// failed download aborts the run. Returns how many downloads were queued.
func (e *Engine) downloadAll(ctx context.Context, assets []*ResolvedAsset) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))

	queued := 0
	for _, a := range assets {
		if !e.markSeen(a.FetchURL) {
			continue
		}
		queued++
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return e.dl.Download(ctx, a.FetchURL, a.LocalPath)
		})
	}
	return queued, g.Wait()
}

// markSeen records a fetch URL in the MirrorState. Returns false when it was
// already processed this run.
func (e *Engine) markSeen(fetchURL string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seen[fetchURL]; ok {
		return false
	}
	e.seen[fetchURL] = struct{}{}
	return true
}

func (e *Engine) markScanned(rel string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.scanned[rel]; ok {
		return false
	}
	e.scanned[rel] = struct{}{}
	return true
}

// forEachNode applies fn to every node in the tree, depth first.
func forEachNode(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		forEachNode(c, fn)
	}
}
