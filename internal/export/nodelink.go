package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/nao1215/sitemapper/internal/urlscope"
)

// NodeLink is the node-link JSON representation of a directed link
// graph, the layout used by networkx and d3.
type NodeLink struct {
	Directed   bool           `json:"directed"`
	Multigraph bool           `json:"multigraph"`
	Graph      map[string]any `json:"graph"`
	Nodes      []NodeLinkNode `json:"nodes"`
	Links      []NodeLinkLink `json:"links"`
}

// NodeLinkNode is a page in the graph.
type NodeLinkNode struct {
	ID string `json:"id"`
}

// NodeLinkLink is a directed edge.
type NodeLinkLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NewNodeLink converts an adjacency map into node-link form. Sources are
// ordered lexically; nodes that only appear as targets follow in first
// reference order. Edges keep the order of each adjacency list.
func NewNodeLink(adjacency map[urlscope.CanonicalURL][]urlscope.CanonicalURL) *NodeLink {
	nl := &NodeLink{
		Directed: true,
		Graph:    map[string]any{},
		Nodes:    make([]NodeLinkNode, 0, len(adjacency)),
		Links:    make([]NodeLinkLink, 0),
	}

	for _, from := range sortedSources(adjacency) {
		nl.Nodes = append(nl.Nodes, NodeLinkNode{ID: from.String()})
	}
	seen := make(map[urlscope.CanonicalURL]struct{}, len(adjacency))
	for from := range adjacency {
		seen[from] = struct{}{}
	}
	for _, from := range sortedSources(adjacency) {
		for _, to := range adjacency[from] {
			nl.Links = append(nl.Links, NodeLinkLink{Source: from.String(), Target: to.String()})
			if _, ok := seen[to]; !ok {
				seen[to] = struct{}{}
				nl.Nodes = append(nl.Nodes, NodeLinkNode{ID: to.String()})
			}
		}
	}
	return nl
}

// Adjacency converts the node-link form back into an adjacency map. Every
// node becomes a key; nodes without outgoing links map to an empty slice.
func (nl *NodeLink) Adjacency() map[urlscope.CanonicalURL][]urlscope.CanonicalURL {
	out := make(map[urlscope.CanonicalURL][]urlscope.CanonicalURL, len(nl.Nodes))
	for _, n := range nl.Nodes {
		out[urlscope.CanonicalURL(n.ID)] = []urlscope.CanonicalURL{}
	}
	for _, l := range nl.Links {
		from := urlscope.CanonicalURL(l.Source)
		to := urlscope.CanonicalURL(l.Target)
		if !slices.Contains(out[from], to) {
			out[from] = append(out[from], to)
		}
		if _, ok := out[to]; !ok {
			out[to] = []urlscope.CanonicalURL{}
		}
	}
	return out
}

// WriteNodeLink writes the graph as node-link JSON to path.
func WriteNodeLink(path string, adjacency map[urlscope.CanonicalURL][]urlscope.CanonicalURL, stdout io.Writer) error {
	nl := NewNodeLink(adjacency)
	return writeTo(path, stdout, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(nl)
	})
}

// LoadNodeLink reads a node-link JSON file written by WriteNodeLink.
func LoadNodeLink(path string) (map[urlscope.CanonicalURL][]urlscope.CanonicalURL, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open graph file: %w", err)
	}
	defer f.Close()

	nl, err := DecodeNodeLink(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file %s: %w", path, err)
	}
	return nl.Adjacency(), nil
}

// DecodeNodeLink decodes node-link JSON from r.
func DecodeNodeLink(r io.Reader) (*NodeLink, error) {
	var nl NodeLink
	if err := json.NewDecoder(r).Decode(&nl); err != nil {
		return nil, err
	}
	if !nl.Directed {
		return nil, fmt.Errorf("graph is not directed")
	}
	return &nl, nil
}

func sortedSources(adjacency map[urlscope.CanonicalURL][]urlscope.CanonicalURL) []urlscope.CanonicalURL {
	keys := make([]urlscope.CanonicalURL, 0, len(adjacency))
	for k := range adjacency {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
