// Package graph accumulates the pages visited by a crawl and the links
// between them, and renders the sitemap document.
//
// A Graph is owned by a single goroutine (the crawl orchestrator) and is
// therefore not safe for concurrent use.
package graph

import (
	"encoding/xml"
	"strings"

	"github.com/nao1215/sitemapper/internal/urlscope"
)

// node is one adjacency entry. visited is false for URLs that only appear
// as the source of a redirect edge.
type node struct {
	visited bool
	edges   []urlscope.CanonicalURL
	edgeSet map[urlscope.CanonicalURL]struct{}
}

// Graph maps visited URLs to their outbound links, keeping insertion order
// for both keys and edges.
type Graph struct {
	buildGraph bool
	order      []urlscope.CanonicalURL
	nodes      map[urlscope.CanonicalURL]*node
	visited    int
}

// New creates an empty Graph. When buildGraph is false, edges are dropped
// and only visitation is recorded.
func New(buildGraph bool) *Graph {
	return &Graph{
		buildGraph: buildGraph,
		order:      make([]urlscope.CanonicalURL, 0),
		nodes:      make(map[urlscope.CanonicalURL]*node),
	}
}

// BuildsGraph reports whether edges are recorded.
func (g *Graph) BuildsGraph() bool {
	return g.buildGraph
}

func (g *Graph) entry(u urlscope.CanonicalURL) *node {
	n, ok := g.nodes[u]
	if !ok {
		n = &node{}
		g.nodes[u] = n
		g.order = append(g.order, u)
	}
	return n
}

// RecordVisited marks u as visited. Recording the same URL twice is a no-op.
func (g *Graph) RecordVisited(u urlscope.CanonicalURL) {
	n := g.entry(u)
	if !n.visited {
		n.visited = true
		g.visited++
	}
}

// RecordEdge records a link from -> to. It does nothing when graph
// building is disabled. Recording an edge does not mark from as visited.
func (g *Graph) RecordEdge(from, to urlscope.CanonicalURL) {
	if !g.buildGraph {
		return
	}
	n := g.entry(from)
	if n.edgeSet == nil {
		n.edgeSet = make(map[urlscope.CanonicalURL]struct{})
	}
	if _, dup := n.edgeSet[to]; dup {
		return
	}
	n.edgeSet[to] = struct{}{}
	n.edges = append(n.edges, to)
}

// RecordEdges records an edge from -> t for every t in to.
func (g *Graph) RecordEdges(from urlscope.CanonicalURL, to []urlscope.CanonicalURL) {
	for _, t := range to {
		g.RecordEdge(from, t)
	}
}

// Visited reports whether u has been recorded as visited.
func (g *Graph) Visited(u urlscope.CanonicalURL) bool {
	n, ok := g.nodes[u]
	return ok && n.visited
}

// Keys returns the visited URLs in visitation order.
func (g *Graph) Keys() []urlscope.CanonicalURL {
	keys := make([]urlscope.CanonicalURL, 0, g.visited)
	for _, u := range g.order {
		if g.nodes[u].visited {
			keys = append(keys, u)
		}
	}
	return keys
}

// Len returns the number of visited URLs.
func (g *Graph) Len() int {
	return g.visited
}

// Edges returns the outbound links of from in discovery order.
func (g *Graph) Edges(from urlscope.CanonicalURL) []urlscope.CanonicalURL {
	n, ok := g.nodes[from]
	if !ok {
		return nil
	}
	out := make([]urlscope.CanonicalURL, len(n.edges))
	copy(out, n.edges)
	return out
}

// EdgeCount returns the total number of recorded edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, n := range g.nodes {
		total += len(n.edges)
	}
	return total
}

// Sources returns every adjacency key in insertion order: visited pages
// and the sources of redirect edges.
func (g *Graph) Sources() []urlscope.CanonicalURL {
	out := make([]urlscope.CanonicalURL, len(g.order))
	copy(out, g.order)
	return out
}

// ExportGraph returns the adjacency map. The second result is false when
// graph building was disabled.
func (g *Graph) ExportGraph() (map[urlscope.CanonicalURL][]urlscope.CanonicalURL, bool) {
	if !g.buildGraph {
		return nil, false
	}
	out := make(map[urlscope.CanonicalURL][]urlscope.CanonicalURL, len(g.nodes))
	for _, u := range g.order {
		out[u] = g.Edges(u)
		if out[u] == nil {
			out[u] = []urlscope.CanonicalURL{}
		}
	}
	return out, true
}

const (
	sitemapHeader = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xsi:schemaLocation="http://www.sitemaps.org/schemas/sitemap/0.9
    http://www.sitemaps.org/schemas/sitemap/0.9/sitemap.xsd"
    xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	sitemapFooter = "\n</urlset>\n"
)

// SitemapDocument renders the visited URLs as a sitemaps.org 0.9 urlset.
// Only <loc> is emitted for each URL.
func (g *Graph) SitemapDocument() string {
	var b strings.Builder
	b.WriteString(sitemapHeader)
	for _, u := range g.Keys() {
		b.WriteString("\n\t<url>\n\t\t<loc>")
		// strings.Builder never returns a write error.
		_ = xml.EscapeText(&b, []byte(u))
		b.WriteString("</loc>\n\t</url>")
	}
	b.WriteString(sitemapFooter)
	return b.String()
}
