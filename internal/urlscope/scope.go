package urlscope

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope classifies URLs relative to a crawl root.
type Scope struct {
	// rootHost is the host (with port, if any) of the seed URL.
	rootHost string

	// configuredDomain is the registrable domain given by the user.
	// Empty means "match the root host exactly" for IsInternal.
	configuredDomain string

	// domain is the registrable domain used by SameDomain. It is the
	// configured domain when set, otherwise the root's registrable domain
	// (which may be empty for IPs and single-label hosts).
	domain string
}

// NewScope creates a Scope for root. configuredDomain may be empty.
func NewScope(root CanonicalURL, configuredDomain string) *Scope {
	configuredDomain = strings.ToLower(strings.TrimSpace(configuredDomain))
	s := &Scope{
		rootHost:         Host(root.String()),
		configuredDomain: configuredDomain,
		domain:           configuredDomain,
	}
	if s.domain == "" {
		if d, ok := RegistrableDomain(root.String()); ok {
			s.domain = d
		}
	}
	return s
}

// RootHost returns the host of the crawl root.
func (s *Scope) RootHost() string {
	return s.rootHost
}

// Domain returns the registrable domain the scope compares against, or ""
// when neither a configured domain nor a root registrable domain exists.
func (s *Scope) Domain() string {
	return s.domain
}

// IsInternal reports whether raw points into the crawl scope.
// With a configured domain, the host only has to contain it. Without one,
// the host must equal the root host exactly.
func (s *Scope) IsInternal(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if s.configuredDomain != "" {
		return strings.Contains(strings.ToLower(u.Host), s.configuredDomain)
	}
	return u.Host == s.rootHost
}

// SameDomain reports whether raw belongs to the same site as the root.
// It is used on the final URL of a redirect chain.
func (s *Scope) SameDomain(raw string) bool {
	if s.domain != "" {
		if d, ok := RegistrableDomain(raw); ok && d == s.domain {
			return true
		}
	}
	return Host(raw) == s.rootHost
}

// RegistrableDomain returns the public-suffix aware "domain.suffix" of the
// host in raw, e.g. "example.co.uk" for "http://a.b.example.co.uk/".
// It returns false for IP literals, single-label hosts such as localhost
// and URLs without a host.
func RegistrableDomain(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return "", false
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", false
	}
	return domain, true
}
