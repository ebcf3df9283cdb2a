package main

import (
	"fmt"

	"github.com/nao1215/sitemapper/internal/export"
	"github.com/nao1215/sitemapper/internal/graph"
	"github.com/nao1215/sitemapper/internal/urlscope"
	"github.com/spf13/cobra"
)

// NewGraphCmd creates the graph command.
// It converts a saved node-link graph into the other export formats.
func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <node-link.json>",
		Short: "Summarize or convert a saved link graph",
		Long: `Graph reads a node-link JSON file written by 'sitemapper crawl --graph-json'
and prints the number of nodes and edges.

The graph can be converted to GEXF for Gephi, to a CSV edge list, or back
to a sitemap of every node.

Examples:
  # Print a summary
  sitemapper graph links.json

  # Convert to GEXF
  sitemapper graph --gexf links.gexf links.json

  # Write a CSV edge list to stdout
  sitemapper graph --edges-csv - links.json`,
		Args: cobra.ExactArgs(1),
		RunE: runGraphCmd,
	}

	cmd.Flags().String("gexf", "", "Write the graph as GEXF to this path ('-' for stdout)")
	cmd.Flags().String("edges-csv", "", "Write the edge list as CSV to this path ('-' for stdout)")
	cmd.Flags().String("sitemap", "", "Write a sitemap of every node to this path ('-' for stdout)")

	return cmd
}

func runGraphCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	gexfPath, err := flags.GetString("gexf")
	if err != nil {
		return err
	}
	edgesPath, err := flags.GetString("edges-csv")
	if err != nil {
		return err
	}
	sitemapPath, err := flags.GetString("sitemap")
	if err != nil {
		return err
	}

	adjacency, err := export.LoadNodeLink(args[0])
	if err != nil {
		return err
	}
	edges := export.EdgeList(adjacency)

	out := cmd.OutOrStdout()
	if gexfPath != "" {
		if err := export.WriteGEXF(gexfPath, adjacency, out,
			export.WithGEXFDescription("link graph loaded from "+args[0])); err != nil {
			return fmt.Errorf("failed to write GEXF: %w", err)
		}
	}
	if edgesPath != "" {
		if err := export.WriteEdgesCSV(edgesPath, edges, out); err != nil {
			return fmt.Errorf("failed to write edge list: %w", err)
		}
	}
	if sitemapPath != "" {
		g := graph.New(false)
		for u := range adjacency {
			g.RecordVisited(u)
		}
		if err := export.WriteSitemap(sitemapPath, g.SitemapDocument(), out); err != nil {
			return fmt.Errorf("failed to write sitemap: %w", err)
		}
	}

	// keep stdout clean for exports written there
	if gexfPath == export.StdoutPath || edgesPath == export.StdoutPath || sitemapPath == export.StdoutPath {
		return nil
	}
	fmt.Fprintf(out, "%s: %d nodes, %d edges\n", args[0], len(adjacency), len(edges))
	if dangling := danglingNodes(adjacency); dangling > 0 {
		fmt.Fprintf(out, "%d nodes have no outgoing links\n", dangling)
	}
	return nil
}

func danglingNodes(adjacency map[urlscope.CanonicalURL][]urlscope.CanonicalURL) int {
	n := 0
	for _, targets := range adjacency {
		if len(targets) == 0 {
			n++
		}
	}
	return n
}
