package transform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// TitleMismatchError is returned when the page title does not match the
// ruleset's expectation: the cleanup selectors were written against markup
// that no longer exists.
type TitleMismatchError struct {
	Want string
	Got  string
}

func (e *TitleMismatchError) Error() string {
	return fmt.Sprintf("transform: page title %q does not contain %q", e.Got, e.Want)
}

// Apply runs the ruleset's cleanup rules against the document, mutating it in
// place. origin is used to absolutize unmirrored same-origin links so the
// emitted template never carries a relative link back into the original
// site's page space.
func Apply(doc *html.Node, rs *Ruleset, origin *url.URL) error {
	gq := goquery.NewDocumentFromNode(doc)

	if rs.ExpectTitle != "" {
		title := strings.TrimSpace(gq.Find("head > title").First().Text())
		if !strings.Contains(title, rs.ExpectTitle) {
			return &TitleMismatchError{Want: rs.ExpectTitle, Got: title}
		}
	}

	for _, r := range rs.Cleanup {
		sel := gq.Find(r.Selector)
		switch r.Action {
		case ActionRemove:
			sel.Remove()
		case ActionStripAttr:
			sel.RemoveAttr(r.Attr)
		case ActionSetAttr:
			sel.SetAttr(r.Attr, r.Value)
		}
	}

	if rs.AbsolutizeLinks {
		absolutizeLinks(gq, rs, origin)
	}
	return nil
}

// absolutizeLinks rewrites root-relative <a href> values outside the asset
// namespaces to absolute URLs on the original origin. Mirrored asset paths
// stay root-relative; fragments and already-absolute links stay as they are.
func absolutizeLinks(gq *goquery.Document, rs *Ruleset, origin *url.URL) {
	gq.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
			return
		}
		for _, ns := range rs.Namespaces {
			if strings.HasPrefix(href, ns) {
				return
			}
		}
		abs := *origin
		abs.Path = ""
		s.SetAttr("href", abs.String()+href)
	})
}

// Serialize renders the document to HTML.
func Serialize(doc *html.Node) ([]byte, error) {
	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return []byte(sb.String()), nil
}
