package fetcher

import "net/http"

// Default browser-like header values.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; WOW64; rv:50.0) Gecko/20100101 Firefox/50.0"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.5"
)

// DefaultHeaders returns the header set sent when the caller does not
// configure one. referer is added when non-empty.
func DefaultHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", DefaultUserAgent)
	h.Set("Accept", DefaultAccept)
	h.Set("Accept-Language", DefaultAcceptLanguage)
	h.Set("Connection", "keep-alive")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// HeadersFromMap converts a flat map (as read from a config file) to an
// http.Header. A nil map yields nil so callers can tell "not configured"
// from "configured empty".
func HeadersFromMap(m map[string]string) http.Header {
	if m == nil {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
