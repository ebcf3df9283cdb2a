// Package main provides the entry point for the sitemapper CLI.
//
// sitemapper crawls a website from a seed URL, stays within the seed's
// domain and writes an XML sitemap of every page it reached. It can also
// record the link graph, export it as JSON, GEXF or CSV, and keep a
// history of crawls to compare runs.
//
// Usage:
//
//	sitemapper crawl https://example.com
//	sitemapper crawl --graph --graph-json graph.json example.com
//	sitemapper history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
