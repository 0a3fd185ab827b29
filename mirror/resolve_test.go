package mirror

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"
)

func testResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	pub := t.TempDir()
	origin, err := url.Parse("https://example.org")
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(origin, pub, DefaultNamespaces), pub
}

func TestResolve_RootRelative(t *testing.T) {
	r, pub := testResolver(t)

	a, err := r.Resolve(AssetReference{Raw: "/wp-content/themes/x/style.css", Kind: KindDOMAttr})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.FetchURL != "https://example.org/wp-content/themes/x/style.css" {
		t.Errorf("FetchURL: got %q", a.FetchURL)
	}
	want := filepath.Join(pub, "wp-content", "themes", "x", "style.css")
	if a.LocalPath != want {
		t.Errorf("LocalPath: got %q, want %q", a.LocalPath, want)
	}
	if got := r.LocalRef(a); got != "/wp-content/themes/x/style.css" {
		t.Errorf("LocalRef: got %q", got)
	}
}

func TestResolve_QueryStringStrippedFromDiskOnly(t *testing.T) {
	r, pub := testResolver(t)

	a, err := r.Resolve(AssetReference{Raw: "/wp-content/a.js?ver=5", Kind: KindDOMAttr})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.FetchURL != "https://example.org/wp-content/a.js?ver=5" {
		t.Errorf("fetch URL should keep the query string, got %q", a.FetchURL)
	}
	if want := filepath.Join(pub, "wp-content", "a.js"); a.LocalPath != want {
		t.Errorf("local path should drop the query string, got %q", a.LocalPath)
	}
}

func TestResolve_Traversal(t *testing.T) {
	r, _ := testResolver(t)

	for _, raw := range []string{
		"/wp-content/../../../etc/passwd",
		"/../../etc/passwd",
	} {
		_, err := r.Resolve(AssetReference{Raw: raw, Kind: KindDOMAttr})
		var pt *PathTraversalError
		if !errors.As(err, &pt) {
			t.Errorf("Resolve(%q): want PathTraversalError, got %v", raw, err)
		}
	}
}

func TestResolve_CSSRelative(t *testing.T) {
	r, pub := testResolver(t)

	ref := AssetReference{
		Raw:        "../fonts/a.woff",
		Kind:       KindCSSFile,
		OriginFile: "wp-content/themes/x/css/style.css",
	}
	if !r.Eligible(ref) {
		t.Fatal("relative CSS reference should be eligible")
	}
	a, err := r.Resolve(ref)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.FetchURL != "https://example.org/wp-content/themes/x/fonts/a.woff" {
		t.Errorf("FetchURL: got %q", a.FetchURL)
	}
	if want := filepath.Join(pub, "wp-content", "themes", "x", "fonts", "a.woff"); a.LocalPath != want {
		t.Errorf("LocalPath: got %q, want %q", a.LocalPath, want)
	}
}

func TestResolve_CSSRelativeEscape(t *testing.T) {
	r, _ := testResolver(t)

	_, err := r.Resolve(AssetReference{
		Raw:        "../../../../../etc/shadow",
		Kind:       KindCSSFile,
		OriginFile: "wp-content/style.css",
	})
	var pt *PathTraversalError
	if !errors.As(err, &pt) {
		t.Fatalf("want PathTraversalError, got %v", err)
	}
}

func TestEligible(t *testing.T) {
	r, _ := testResolver(t)

	cases := []struct {
		raw  string
		kind SourceKind
		want bool
	}{
		{"/wp-content/uploads/a.png", KindDOMAttr, true},
		{"/wp-includes/js/jquery.js", KindDOMAttr, true},
		{"https://example.org/wp-content/a.css", KindDOMAttr, true},
		{"//example.org/wp-content/a.css", KindDOMAttr, true},
		{"//cdn.other.net/lib.js", KindDOMAttr, false},
		{"https://other.net/wp-content/a.css", KindDOMAttr, false},
		{"/about/", KindDOMAttr, false},
		{"data:image/png;base64,AAAA", KindInlineStyle, false},
		{"#top", KindDOMAttr, false},
		{"", KindDOMAttr, false},
		{"img/bg.png", KindDOMAttr, false},
	}
	for _, tc := range cases {
		ref := AssetReference{Raw: tc.raw, Kind: tc.kind}
		if got := r.Eligible(ref); got != tc.want {
			t.Errorf("Eligible(%q): got %v, want %v", tc.raw, got, tc.want)
		}
	}
}
