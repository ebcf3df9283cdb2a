// Package urlscope canonicalizes URLs and decides whether they belong to
// the crawl scope.
//
// Every URL that enters the crawl engine passes through a Canonicalizer
// first. The resulting CanonicalURL is the identity of a page: two URLs are
// the same page if and only if their canonical forms are byte-equal.
//
// # Canonical form
//
// The default policy only strips the fragment. Scheme, host, path and query
// are kept exactly as they were written. Stricter policies can be enabled
// with CanonicalOption values:
//
//   - WithForceScheme rewrites the scheme (e.g. https -> http)
//   - WithWWWPrefix prefixes the host with "www."
//   - WithTrimTrailingSlash removes trailing slashes from the path
//
// All policies are idempotent.
//
// # Scope
//
// A Scope is built from the seed URL and an optional registrable domain.
// IsInternal decides whether an extracted link is followed, and SameDomain
// re-checks the final URL after redirects using public-suffix aware
// registrable domains (golang.org/x/net/publicsuffix).
package urlscope
