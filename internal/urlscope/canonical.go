package urlscope

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CanonicalURL is a normalized absolute http(s) URL without fragment.
// Values are produced by Canonicalizer.Canonicalize only.
type CanonicalURL string

// String returns the URL as a plain string.
func (c CanonicalURL) String() string {
	return string(c)
}

// Canonicalizer turns raw URLs into CanonicalURL values according to a
// fixed policy. A Canonicalizer is immutable and safe for concurrent use.
type Canonicalizer struct {
	// forceScheme replaces the scheme when non-empty.
	forceScheme string

	// wwwPrefix adds "www." to host names that lack it.
	wwwPrefix bool

	// trimTrailingSlash removes trailing "/" characters from the path.
	trimTrailingSlash bool
}

// CanonicalOption configures a Canonicalizer.
type CanonicalOption func(*Canonicalizer)

// WithForceScheme rewrites the scheme of every URL to scheme.
// Only "http" and "https" are accepted; other values are ignored.
func WithForceScheme(scheme string) CanonicalOption {
	return func(c *Canonicalizer) {
		scheme = strings.ToLower(scheme)
		if scheme == "http" || scheme == "https" {
			c.forceScheme = scheme
		}
	}
}

// WithWWWPrefix prefixes host names with "www." unless they already start
// with it. IP literals are left untouched.
func WithWWWPrefix() CanonicalOption {
	return func(c *Canonicalizer) {
		c.wwwPrefix = true
	}
}

// WithTrimTrailingSlash removes trailing slashes from the path, so that
// "http://example.com/docs/" and "http://example.com/docs" are one page.
func WithTrimTrailingSlash() CanonicalOption {
	return func(c *Canonicalizer) {
		c.trimTrailingSlash = true
	}
}

// NewCanonicalizer creates a Canonicalizer. Without options it keeps URLs
// as given and strips only the fragment.
func NewCanonicalizer(opts ...CanonicalOption) *Canonicalizer {
	c := &Canonicalizer{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewStrictCanonicalizer returns the stricter policy: scheme forced to
// http, "www." host prefix and no trailing slash.
func NewStrictCanonicalizer() *Canonicalizer {
	return NewCanonicalizer(WithForceScheme("http"), WithWWWPrefix(), WithTrimTrailingSlash())
}

// Strict reports whether the canonicalizer rewrites anything beyond the
// fragment.
func (c *Canonicalizer) Strict() bool {
	return c.forceScheme != "" || c.wwwPrefix || c.trimTrailingSlash
}

// Canonicalize normalizes raw into its canonical form.
//
// The input must be an absolute http or https URL with a host. Relative
// links have to be resolved against their page before they are
// canonicalized.
func (c *Canonicalizer) Canonicalize(raw string) (CanonicalURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrMalformedURL)
	}

	// Cut the fragment on the raw text so the remaining bytes are kept
	// exactly as authored.
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrMalformedURL, raw)
	}
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}

	if !c.Strict() {
		return CanonicalURL(raw), nil
	}

	if c.forceScheme != "" {
		u.Scheme = c.forceScheme
	}
	if c.wwwPrefix {
		u.Host = addWWW(u.Host)
	}
	if c.trimTrailingSlash {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.RawPath != "" {
			u.RawPath = strings.TrimRight(u.RawPath, "/")
		}
	}
	u.Fragment = ""
	u.RawFragment = ""

	return CanonicalURL(u.String()), nil
}

// addWWW prefixes host (which may carry a port) with "www.".
func addWWW(host string) string {
	hostname := host
	port := ""
	if h, p, err := net.SplitHostPort(host); err == nil {
		hostname, port = h, p
	}
	if net.ParseIP(hostname) != nil || strings.HasPrefix(strings.ToLower(hostname), "www.") {
		return host
	}
	hostname = "www." + hostname
	if port != "" {
		return net.JoinHostPort(hostname, port)
	}
	return hostname
}

// IsAbsoluteHTTPURL reports whether raw can denote an http(s) resource:
// it is non-empty and its scheme is http, https or empty. Scheme-relative
// and path-relative references count as candidates; mailto:, javascript:
// and friends do not.
func IsAbsoluteHTTPURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
		return true
	default:
		return false
	}
}

// IsRelative reports whether raw has no host component.
func IsRelative(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return u.Host == ""
}

// PathDepth returns the number of "/" characters in the path of raw.
// "http://example.com" is 0, "http://example.com/a/b" is 2.
func PathDepth(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 0
	}
	return strings.Count(u.Path, "/")
}

// Host returns the host (including any port) of raw, or "" when raw does
// not parse.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
