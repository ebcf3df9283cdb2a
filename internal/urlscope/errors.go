package urlscope

import "errors"

var (
	// ErrMalformedURL is returned when a URL cannot be parsed or is not an
	// absolute http(s) URL. The affected URL is dropped by the crawler.
	ErrMalformedURL = errors.New("malformed url")

	// ErrUnsupportedScheme is returned for absolute URLs whose scheme is
	// neither http nor https (mailto:, javascript:, ftp:, ...).
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)
