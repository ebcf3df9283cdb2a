// Package export writes crawl results to files in formats other tools
// understand: the sitemap XML, the link graph as node-link JSON or GEXF
// 1.2 (for Gephi and similar), and CSV edge and failure lists.
//
// Every writer accepts "-" as path to mean standard output.
package export
