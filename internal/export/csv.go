package export

import (
	"io"

	"github.com/gocarina/gocsv"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/urlscope"
)

// WriteEdgesCSV writes one "source,target" row per graph edge.
func WriteEdgesCSV(path string, edges []model.Edge, stdout io.Writer) error {
	if edges == nil {
		edges = []model.Edge{}
	}
	return writeTo(path, stdout, func(w io.Writer) error {
		return gocsv.Marshal(&edges, w)
	})
}

// WriteFailuresCSV writes the error set with status code and attempts.
func WriteFailuresCSV(path string, failures []model.Failure, stdout io.Writer) error {
	if failures == nil {
		failures = []model.Failure{}
	}
	return writeTo(path, stdout, func(w io.Writer) error {
		return gocsv.Marshal(&failures, w)
	})
}

// ReadEdgesCSV parses an edge list written by WriteEdgesCSV.
func ReadEdgesCSV(r io.Reader) ([]model.Edge, error) {
	var edges []model.Edge
	if err := gocsv.Unmarshal(r, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// EdgeList flattens an adjacency map into edges, sources sorted and
// targets in recorded order.
func EdgeList(adjacency map[urlscope.CanonicalURL][]urlscope.CanonicalURL) []model.Edge {
	edges := make([]model.Edge, 0)
	for _, from := range sortedSources(adjacency) {
		for _, to := range adjacency[from] {
			edges = append(edges, model.Edge{From: from.String(), To: to.String()})
		}
	}
	return edges
}
