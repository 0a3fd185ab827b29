package mirror

import (
	"reflect"
	"strings"
	"testing"
)

func extract(s string) []string {
	return ExtractCSSRefs(strings.NewReader(s))
}

func TestExtractCSSRefs_Forms(t *testing.T) {
	css := `
@import url(/wp-content/themes/x/base.css);
@import "/wp-content/themes/x/print.css";
body { background: url('/wp-content/img/bg.png'); }
.hero { background-image: url("/wp-content/img/hero.jpg"); }
.icon { background: url(../img/icon.svg) no-repeat; }
`
	want := []string{
		"/wp-content/themes/x/base.css",
		"/wp-content/themes/x/print.css",
		"/wp-content/img/bg.png",
		"/wp-content/img/hero.jpg",
		"../img/icon.svg",
	}
	if got := extract(css); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v\nwant %v", got, want)
	}
}

func TestExtractCSSRefs_SkipsDataURIs(t *testing.T) {
	css := `.a { background: url(data:image/png;base64,iVBORw==); }
.b { background: url("/wp-content/real.png"); }`
	got := extract(css)
	if len(got) != 1 || got[0] != "/wp-content/real.png" {
		t.Errorf("data: URIs must be skipped, got %v", got)
	}
}

func TestExtractCSSRefs_MalformedIsEmpty(t *testing.T) {
	for _, css := range []string{
		"",
		"this is not css {{{",
		"body { background: url( }",
	} {
		if got := extract(css); len(got) != 0 {
			t.Errorf("extract(%q): want no refs, got %v", css, got)
		}
	}
}

func TestExtractCSSRefs_FontFaceSources(t *testing.T) {
	css := `@font-face {
  font-family: "Theme Sans";
  src: url("../fonts/theme.woff2") format("woff2"),
       url(../fonts/theme.woff) format("woff");
}`
	want := []string{"../fonts/theme.woff2", "../fonts/theme.woff"}
	if got := extract(css); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
