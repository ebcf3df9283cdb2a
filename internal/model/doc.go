// Package model defines the values a crawl hands to its collaborators:
// the per-page records, the failures and the CrawlReport that groups them.
//
// The crawl engine itself works on urlscope.CanonicalURL values. Everything
// in this package uses plain strings so the types serialize directly to
// JSON, CSV and the history database.
package model
