package model

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// PageRecord describes one visited page.
type PageRecord struct {
	// URL is the canonical URL the page was recorded under (the final URL
	// after redirects).
	URL string `json:"url" csv:"url"`

	// RequestedURL is the URL taken from the frontier. It differs from URL
	// only when the fetch was redirected.
	RequestedURL string `json:"requested_url,omitempty" csv:"requested_url"`

	// Depth is the number of hops from the seed.
	Depth int `json:"depth" csv:"depth"`

	// StatusCode is the HTTP status of the final response.
	StatusCode int `json:"status_code" csv:"status_code"`

	// ContentType is the Content-Type header of the final response.
	ContentType string `json:"content_type,omitempty" csv:"content_type"`

	// Title is the text of the <title> element, empty for non-HTML pages.
	Title string `json:"title,omitempty" csv:"title"`

	// Size is the number of body bytes read.
	Size int `json:"size" csv:"size"`

	// Hash is the SHA3-256 fingerprint of the body. Comparing hashes across
	// runs shows which pages changed.
	Hash string `json:"hash,omitempty" csv:"hash"`

	// OutLinks is the number of in-scope links found on the page.
	OutLinks int `json:"out_links" csv:"out_links"`

	// FetchedAt is when the page was processed.
	FetchedAt time.Time `json:"fetched_at" csv:"fetched_at"`
}

// Fingerprint returns the hex encoded SHA3-256 hash of body, or "" for an
// empty body.
func Fingerprint(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Edge is one discovered link between two pages.
type Edge struct {
	From string `json:"source" csv:"source"`
	To   string `json:"target" csv:"target"`
}

// Failure is a URL that could not be fetched after all attempts.
type Failure struct {
	URL        string `json:"url" csv:"url"`
	Error      string `json:"error" csv:"error"`
	StatusCode int    `json:"status_code,omitempty" csv:"status_code"`
	Attempts   int    `json:"attempts" csv:"attempts"`
}
