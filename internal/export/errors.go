package export

import "errors"

var (
	// ErrNoGraph is returned when a graph export is requested but the
	// crawl did not record edges.
	ErrNoGraph = errors.New("link graph was not recorded; enable graph building")

	// ErrEmptyPath is returned when an output path is empty.
	ErrEmptyPath = errors.New("output path is empty")
)
