package model

import (
	"time"

	"github.com/google/uuid"
)

// CrawlStats summarizes the decisions taken during a crawl.
type CrawlStats struct {
	// Visited is the number of pages in the sitemap.
	Visited int `json:"visited"`

	// Failed is the number of URLs in the error set.
	Failed int `json:"failed"`

	// Excluded counts links rejected by an exclusion pattern.
	Excluded int `json:"excluded"`

	// TooDeep counts links rejected by the path or step depth limit.
	TooDeep int `json:"too_deep"`

	// Duplicates counts links that were already known.
	Duplicates int `json:"duplicates"`

	// Redirected counts fetches that ended on a different URL.
	Redirected int `json:"redirected"`

	// OutOfScope counts redirect targets dropped by the scope check.
	OutOfScope int `json:"out_of_scope"`

	// Batches is the number of fetch batches dispatched.
	Batches int `json:"batches"`

	// Requests is the number of URLs handed to the fetch executor.
	Requests int `json:"requests"`

	// Edges is the number of recorded graph edges.
	Edges int `json:"edges"`
}

// CrawlReport is the complete result of one crawl run.
type CrawlReport struct {
	// RunID identifies the run in the history database.
	RunID string `json:"run_id"`

	// Seed is the canonical seed URL.
	Seed string `json:"seed"`

	// Domain is the registrable domain used for scope checks, if any.
	Domain string `json:"domain,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Stopped is true when the crawl ended through Stop or context
	// cancellation rather than an empty frontier.
	Stopped bool `json:"stopped"`

	// GraphEnabled tells whether Edges is meaningful.
	GraphEnabled bool `json:"graph_enabled"`

	Pages    []PageRecord `json:"pages"`
	Edges    []Edge       `json:"edges,omitempty"`
	Failures []Failure    `json:"failures,omitempty"`
	Stats    CrawlStats   `json:"stats"`
}

// NewCrawlReport creates a report for seed with a fresh run ID.
func NewCrawlReport(seed string) *CrawlReport {
	return &CrawlReport{
		RunID:     uuid.NewString(),
		Seed:      seed,
		StartedAt: time.Now(),
		Pages:     make([]PageRecord, 0),
		Edges:     make([]Edge, 0),
		Failures:  make([]Failure, 0),
	}
}

// Duration returns how long the crawl ran. It is zero until FinishedAt is
// set.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// VisitedURLs returns the page URLs in visitation order.
func (r *CrawlReport) VisitedURLs() []string {
	urls := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		urls = append(urls, p.URL)
	}
	return urls
}

// FailedURLs returns the failed URLs in the order they were recorded.
func (r *CrawlReport) FailedURLs() []string {
	urls := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		urls = append(urls, f.URL)
	}
	return urls
}

// HasFailures reports whether any URL failed.
func (r *CrawlReport) HasFailures() bool {
	return len(r.Failures) > 0
}
