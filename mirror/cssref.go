package mirror

import (
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// ExtractCSSRefs scans raw CSS text and returns every url() and @import
// reference argument, quotes stripped, in document order. data: URIs are
// skipped. Extraction is best-effort: the lexer never aborts on malformed
// input, it simply stops yielding tokens, so broken CSS degrades to an empty
// (or shorter) result instead of failing the run.
func ExtractCSSRefs(r io.Reader) []string {
	lexer := css.NewLexer(parse.NewInput(r))

	var refs []string
	// inURLFunc is set between a `url(` function token and its closing paren;
	// inImport between `@import` and the following `;`.
	inURLFunc := false
	inImport := false

	add := func(raw string) {
		raw = trimCSSRef(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return
		}
		refs = append(refs, raw)
	}

	for {
		tok, data := lexer.Next()
		switch tok {
		case css.ErrorToken:
			return refs
		case css.URLToken:
			// Unquoted form lexes as a single token: url(/path/a.png)
			add(string(data))
			inImport = false
		case css.FunctionToken:
			if strings.EqualFold(string(data), "url(") {
				inURLFunc = true
			}
		case css.StringToken:
			if inURLFunc || inImport {
				add(string(data))
				inURLFunc = false
				inImport = false
			}
		case css.RightParenthesisToken:
			inURLFunc = false
		case css.AtKeywordToken:
			inImport = strings.EqualFold(string(data), "@import")
		case css.SemicolonToken, css.LeftBraceToken:
			inImport = false
		}
	}
}

// trimCSSRef strips the url( wrapper, surrounding whitespace and quotes from
// a lexed reference token.
func trimCSSRef(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "url(") {
		s = strings.TrimSuffix(s[4:], ")")
		s = strings.TrimSpace(s)
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
