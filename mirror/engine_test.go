package mirror

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"
)

// testSite serves a small WordPress-shaped asset tree and records hits.
type testSite struct {
	srv    *httptest.Server
	origin *url.URL

	mu      sync.Mutex
	hits    map[string]int
	queries map[string]string
}

func newTestSite(t *testing.T, files map[string]string) *testSite {
	t.Helper()
	site := &testSite{hits: map[string]int{}, queries: map[string]string{}}
	site.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		site.queries[r.URL.Path] = r.URL.RawQuery
		site.mu.Unlock()

		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(site.srv.Close)

	origin, err := url.Parse(site.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	site.origin = origin
	return site
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) query(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[path]
}

func parsePage(t *testing.T, page string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func render(t *testing.T, doc *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

const testPage = `<!DOCTYPE html>
<html><head>
<link rel="stylesheet" href="/wp-content/themes/x/style.css?ver=6.1">
<link rel="canonical" href="/about/">
<script src="/wp-content/js/app.js?ver=5"></script>
<script src="https://cdn.example.net/lib.js"></script>
<style>.h{background:url(/wp-content/img/inline.png)}</style>
</head><body>
<img src="/wp-content/img/logo.png" alt="">
<img data-lazy-src="/wp-content/img/logo.png" alt="">
</body></html>`

var testFiles = map[string]string{
	"/wp-content/themes/x/style.css": "body{background:url('/wp-content/img/bg.png')}\n" +
		"@font-face{src:url(../fonts/a.woff)}",
	"/wp-content/themes/fonts/a.woff": "woff-bytes",
	"/wp-content/img/bg.png":          "bg",
	"/wp-content/img/logo.png":        "logo",
	"/wp-content/img/inline.png":      "inline",
	"/wp-content/js/app.js":           "js",
}

func TestEngine_Run(t *testing.T) {
	site := newTestSite(t, testFiles)
	pub := t.TempDir()
	doc := parsePage(t, testPage)

	eng := New(Config{Origin: site.origin, PublicDir: pub})
	if err := eng.Run(context.Background(), doc); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Every same-origin namespace asset is mirrored, including the ones only
	// reachable through the downloaded stylesheet.
	for _, rel := range []string{
		"wp-content/themes/x/style.css",
		"wp-content/js/app.js",
		"wp-content/img/logo.png",
		"wp-content/img/inline.png",
		"wp-content/img/bg.png",
		"wp-content/themes/fonts/a.woff",
	} {
		if _, err := os.Stat(filepath.Join(pub, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing mirrored asset %s: %v", rel, err)
		}
	}

	// Query string preserved on the wire, stripped on disk.
	if q := site.query("/wp-content/js/app.js"); q != "ver=5" {
		t.Errorf("fetch should keep the query string, got %q", q)
	}

	// Two elements referencing the same asset → one download.
	if n := site.hitCount("/wp-content/img/logo.png"); n != 1 {
		t.Errorf("logo.png fetched %d times, want 1", n)
	}

	out := render(t, doc)
	if !strings.Contains(out, `href="/wp-content/themes/x/style.css"`) {
		t.Error("stylesheet href should be rewritten without the query string")
	}
	if !strings.Contains(out, `src="/wp-content/js/app.js"`) {
		t.Error("script src should be rewritten without the query string")
	}
	if !strings.Contains(out, `src="https://cdn.example.net/lib.js"`) {
		t.Error("foreign script must be left untouched")
	}
	if !strings.Contains(out, `href="/about/"`) {
		t.Error("same-origin non-namespace link must be left untouched")
	}
}

func TestEngine_SecondRunDownloadsNothing(t *testing.T) {
	site := newTestSite(t, testFiles)
	pub := t.TempDir()

	first := New(Config{Origin: site.origin, PublicDir: pub})
	if err := first.Run(context.Background(), parsePage(t, testPage)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Downloads() == 0 {
		t.Fatal("first run should download something")
	}

	second := New(Config{Origin: site.origin, PublicDir: pub})
	if err := second.Run(context.Background(), parsePage(t, testPage)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := second.Downloads(); n != 0 {
		t.Errorf("second run against a populated mirror downloaded %d assets, want 0", n)
	}
}

func TestEngine_ZeroMatchesIsStructuralMismatch(t *testing.T) {
	site := newTestSite(t, nil)
	pub := t.TempDir()
	doc := parsePage(t, `<html><head></head><body><p>redesigned markup</p></body></html>`)

	eng := New(Config{Origin: site.origin, PublicDir: pub})
	err := eng.Run(context.Background(), doc)
	var sm *StructuralMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("want StructuralMismatchError, got %v", err)
	}
	if eng.Downloads() != 0 {
		t.Error("no downloads may happen when the attribute scan matches nothing")
	}
}

func TestEngine_FailedDownloadAbortsRun(t *testing.T) {
	files := map[string]string{}
	for k, v := range testFiles {
		files[k] = v
	}
	delete(files, "/wp-content/img/logo.png")

	site := newTestSite(t, files)
	eng := New(Config{Origin: site.origin, PublicDir: t.TempDir()})

	err := eng.Run(context.Background(), parsePage(t, testPage))
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("want DownloadError, got %v", err)
	}
}

func TestEngine_CSSDepth(t *testing.T) {
	page := `<html><head><link rel="stylesheet" href="/wp-content/css/a.css"></head><body></body></html>`
	files := map[string]string{
		"/wp-content/css/a.css":    "@import url(/wp-content/css/b.css);",
		"/wp-content/css/b.css":    "body{background:url(/wp-content/img/deep.png)}",
		"/wp-content/img/deep.png": "deep",
	}

	t.Run("depth 1 stops after one pass", func(t *testing.T) {
		site := newTestSite(t, files)
		pub := t.TempDir()
		eng := New(Config{Origin: site.origin, PublicDir: pub, CSSDepth: 1})
		if err := eng.Run(context.Background(), parsePage(t, page)); err != nil {
			t.Fatalf("run: %v", err)
		}
		if _, err := os.Stat(filepath.Join(pub, "wp-content", "css", "b.css")); err != nil {
			t.Error("b.css should be mirrored by the single CSS pass")
		}
		if _, err := os.Stat(filepath.Join(pub, "wp-content", "img", "deep.png")); !os.IsNotExist(err) {
			t.Error("deep.png should not be mirrored at depth 1")
		}
	})

	t.Run("depth 2 follows nested stylesheets", func(t *testing.T) {
		site := newTestSite(t, files)
		pub := t.TempDir()
		eng := New(Config{Origin: site.origin, PublicDir: pub, CSSDepth: 2})
		if err := eng.Run(context.Background(), parsePage(t, page)); err != nil {
			t.Fatalf("run: %v", err)
		}
		if _, err := os.Stat(filepath.Join(pub, "wp-content", "img", "deep.png")); err != nil {
			t.Error("deep.png should be mirrored at depth 2")
		}
	})
}
