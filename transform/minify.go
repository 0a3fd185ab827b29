package transform

import (
	"bytes"

	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
)

// Minify compacts serialized HTML. Document structure and end tags are kept
// so the template's injection points survive minification.
func Minify(in []byte) ([]byte, error) {
	m := minify.New()
	m.Add("text/html", &mhtml.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})

	var out bytes.Buffer
	if err := m.Minify("text/html", &out, bytes.NewReader(in)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
