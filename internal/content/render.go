package content

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Tags that survive sanitization. Everything else is stripped, never rejected.
var policy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("a", "abbr", "acronym", "b", "blockquote", "code",
		"em", "i", "li", "ol", "ul", "pre", "strong",
		"h1", "h2", "h3", "h4", "p", "br")
	p.AllowAttrs("href").OnElements("a")
	p.RequireNoFollowOnLinks(true)
	return p
}()

// renderBody turns markdown into sanitized HTML. Malformed input never fails
// the render; worst case the raw text is sanitized as-is.
func renderBody(body string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return policy.Sanitize(body)
	}
	return policy.Sanitize(buf.String())
}
