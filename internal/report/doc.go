// Package report renders crawl reports for people and tools.
//
// Writers implement the Writer interface and can be combined with
// MultiWriter:
//   - SimpleWriter: plain text summary for the terminal
//   - JSONWriter: the full report as JSON
//   - MarkdownWriter: a Markdown document with a mermaid pie chart
//
// Machine formats of the link graph itself (sitemap, node-link JSON,
// GEXF, CSV) live in the export package.
package report
