package mirror

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Resolver turns raw asset references into fetch URLs and containment-checked
// local filesystem paths. It is pure: no network, no filesystem writes.
type Resolver struct {
	origin     *url.URL
	publicDir  string
	namespaces []string
}

// NewResolver creates a Resolver for one run. origin is the scheme+host of
// the fetched page, publicDir the absolute local mirror root, namespaces the
// path prefixes eligible for mirroring (e.g. "/wp-content/").
func NewResolver(origin *url.URL, publicDir string, namespaces []string) *Resolver {
	return &Resolver{
		origin:     origin,
		publicDir:  filepath.Clean(publicDir),
		namespaces: namespaces,
	}
}

// Eligible reports whether a reference is same-origin and under a recognized
// asset namespace. Relative references inside a CSS file are eligible without
// a namespace match (same-directory assets); containment is still enforced by
// Resolve. Foreign, data:, fragment-only and unrecognized same-origin
// references are not eligible and are left untouched by the caller.
func (r *Resolver) Eligible(ref AssetReference) bool {
	raw := strings.TrimSpace(ref.Raw)
	if raw == "" || strings.HasPrefix(raw, "#") ||
		strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") ||
		strings.HasPrefix(raw, "mailto:") {
		return false
	}

	// Protocol-relative: assume https, then treat like an absolute URL.
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return false
		}
		if u.Hostname() != r.origin.Hostname() {
			return false // foreign host, never mirrored
		}
		return r.inNamespace(u.Path)
	}

	if strings.HasPrefix(u.Path, "/") {
		// Root-relative: implicitly same origin.
		return r.inNamespace(u.Path)
	}

	// Bare relative. Only meaningful when found inside a CSS file, where it
	// resolves against the referencing file's own directory.
	return ref.Kind == KindCSSFile && ref.OriginFile != ""
}

// Resolve maps a reference to its ResolvedAsset. The fetch URL keeps any
// query string; the local path does not. The local path is verified to be a
// strict descendant of the public directory; any escape is a
// PathTraversalError, which aborts the run.
func (r *Resolver) Resolve(ref AssetReference) (*ResolvedAsset, error) {
	raw := strings.TrimSpace(ref.Raw)
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &PathTraversalError{Ref: ref.Raw, Path: raw}
	}

	// relPath is the slash path under the mirror root, before cleaning, so
	// that ../ segments survive long enough to be caught by the containment
	// check below.
	var relPath string
	switch {
	case u.IsAbs() || strings.HasPrefix(u.Path, "/"):
		relPath = strings.TrimPrefix(u.Path, "/")
	default:
		relPath = path.Join(path.Dir(ref.OriginFile), u.Path)
	}

	local := filepath.Join(r.publicDir, filepath.FromSlash(relPath))
	if !r.contained(local) {
		return nil, &PathTraversalError{Ref: ref.Raw, Path: local}
	}

	return &ResolvedAsset{
		FetchURL:  r.fetchURL(u, ref),
		LocalPath: local,
	}, nil
}

// LocalRef returns the root-relative web form of a resolved asset, used to
// rewrite document attributes ("/wp-content/themes/a/style.css").
func (r *Resolver) LocalRef(a *ResolvedAsset) string {
	rel, err := filepath.Rel(r.publicDir, a.LocalPath)
	if err != nil {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}

func (r *Resolver) fetchURL(u *url.URL, ref AssetReference) string {
	if u.IsAbs() {
		return u.String()
	}
	base := *r.origin
	if strings.HasPrefix(u.Path, "/") {
		base.Path = "/"
	} else {
		base.Path = "/" + path.Dir(ref.OriginFile) + "/"
	}
	return base.ResolveReference(u).String()
}

func (r *Resolver) inNamespace(p string) bool {
	for _, ns := range r.namespaces {
		if strings.HasPrefix(p, ns) {
			return true
		}
	}
	return false
}

// contained verifies the cleaned candidate path is a strict descendant of the
// public directory. Prefix comparison on cleaned paths, per the containment
// invariant; equality with the root itself is rejected.
func (r *Resolver) contained(candidate string) bool {
	candidate = filepath.Clean(candidate)
	return strings.HasPrefix(candidate, r.publicDir+string(os.PathSeparator))
}
