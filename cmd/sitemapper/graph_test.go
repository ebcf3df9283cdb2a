package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/sitemapper/internal/export"
	"github.com/nao1215/sitemapper/internal/urlscope"
)

func writeTestGraph(t *testing.T) string {
	t.Helper()

	adjacency := map[urlscope.CanonicalURL][]urlscope.CanonicalURL{
		"http://example.com/":  {"http://example.com/a", "http://example.com/b"},
		"http://example.com/a": {"http://example.com/"},
		"http://example.com/b": {},
	}
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := export.WriteNodeLink(path, adjacency, io.Discard); err != nil {
		t.Fatal(err)
	}
	return path
}

func executeGraph(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewGraphCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGraphCmdSummary(t *testing.T) {
	t.Parallel()

	path := writeTestGraph(t)
	out, err := executeGraph(t, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "3 nodes, 3 edges") {
		t.Errorf("unexpected summary: %q", out)
	}
	if !strings.Contains(out, "1 nodes have no outgoing links") {
		t.Errorf("missing dangling count: %q", out)
	}
}

func TestGraphCmdConvert(t *testing.T) {
	t.Parallel()

	path := writeTestGraph(t)
	dir := t.TempDir()
	gexf := filepath.Join(dir, "graph.gexf")
	edges := filepath.Join(dir, "edges.csv")

	if _, err := executeGraph(t, "--gexf", gexf, "--edges-csv", edges, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(gexf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "<gexf") || !strings.Contains(string(content), "http://example.com/a") {
		t.Errorf("unexpected GEXF:\n%s", content)
	}

	f, err := os.Open(edges)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	list, err := export.ReadEdgesCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("edges = %v", list)
	}
}

func TestGraphCmdSitemapToStdout(t *testing.T) {
	t.Parallel()

	out, err := executeGraph(t, "--sitemap", "-", writeTestGraph(t))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "<loc>") != 3 {
		t.Errorf("unexpected sitemap:\n%s", out)
	}
	if strings.Contains(out, "nodes") {
		t.Error("summary must not be mixed into stdout exports")
	}
}

func TestGraphCmdErrors(t *testing.T) {
	t.Parallel()

	if _, err := executeGraph(t); err == nil {
		t.Error("expected error without a file")
	}
	if _, err := executeGraph(t, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}
