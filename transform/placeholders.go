package transform

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Placeholders are the caller-supplied fragments injected into the template.
// Zero values fall back to Go template actions, so the default output is a
// directly executable template file.
type Placeholders struct {
	// Title replaces the text of the ruleset's title target.
	Title string
	// Head is raw HTML appended to the ruleset's head target.
	Head string
	// Body is raw HTML appended to the ruleset's body target.
	Body string
}

func (p *Placeholders) defaults() {
	if p.Title == "" {
		p.Title = "{{.Title}}"
	}
	if p.Head == "" {
		p.Head = "{{.Head}}"
	}
	if p.Body == "" {
		p.Body = "{{.Body}}"
	}
}

// Inject writes the placeholders into the document at the targets the
// ruleset declares. Missing targets are skipped: a variant without a body
// target simply gets no body injection point.
func Inject(doc *html.Node, rs *Ruleset, ph Placeholders) {
	ph.defaults()
	gq := goquery.NewDocumentFromNode(doc)

	if rs.Placeholders.Title != "" {
		gq.Find(rs.Placeholders.Title).First().SetText(ph.Title)
	}
	if rs.Placeholders.Head != "" {
		gq.Find(rs.Placeholders.Head).First().AppendHtml(ph.Head + "\n")
	}
	if rs.Placeholders.Body != "" {
		gq.Find(rs.Placeholders.Body).First().AppendHtml(ph.Body + "\n")
	}
}
