package crawler

import (
	"iter"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/sitemapper/internal/urlscope"
	"golang.org/x/net/html"
)

// anchorPattern matches the href attribute of an <a> tag. It is
// deliberately permissive: malformed markup still yields whatever anchors
// can be recognized, and nothing else in the document is interpreted.
var anchorPattern = regexp.MustCompile(`<a [^>]*href=['"](.*?)['"].*?>`)

// ExtractLinks returns the raw href values of all anchors in body, in
// document order. The sequence is lazy and can be ranged over repeatedly.
func ExtractLinks(body []byte) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := body
		for len(rest) > 0 {
			loc := anchorPattern.FindSubmatchIndex(rest)
			if loc == nil {
				return
			}
			if !yield(string(rest[loc[2]:loc[3]])) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

// ResolveLinks turns the anchors of a page into canonical in-scope URLs.
//
// Non-http candidates are dropped. Relative references are resolved
// against pageURL, which must be the final URL of the page. Absolute links
// are canonicalized first and kept only when scope reports the canonical
// form as internal. The result has no
// duplicates and keeps first-occurrence order.
func ResolveLinks(body []byte, pageURL urlscope.CanonicalURL, scope *urlscope.Scope, canon *urlscope.Canonicalizer) []urlscope.CanonicalURL {
	base, err := url.Parse(pageURL.String())
	if err != nil {
		return nil
	}

	links := make([]urlscope.CanonicalURL, 0)
	seen := make(map[urlscope.CanonicalURL]struct{})
	for raw := range ExtractLinks(body) {
		raw = strings.TrimSpace(html.UnescapeString(raw))
		if !urlscope.IsAbsoluteHTTPURL(raw) {
			continue
		}

		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		// ResolveReference leaves absolute URLs untouched and fills in the
		// scheme of scheme-relative ones.
		link, err := canon.Canonicalize(base.ResolveReference(ref).String())
		if err != nil {
			continue
		}
		// Scope is checked on the canonical form: strict mode rewrites the
		// root host, so a raw link to the bare host would never match.
		if !urlscope.IsRelative(raw) && !scope.IsInternal(link.String()) {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links
}
