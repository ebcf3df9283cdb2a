package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitemapper/internal/model"
)

const ruleWidth = 70

// SimpleWriter prints a plain text crawl summary for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose lists every visited page, not only the failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every visited page.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable form.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeStats(&sb, report)
	w.writeFailures(&sb, report)
	if w.verbose {
		w.writePages(&sb, report)
	}
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                          SITEMAPPER REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed:      %s\n", report.Seed)
	if report.Domain != "" {
		fmt.Fprintf(sb, "Domain:    %s\n", report.Domain)
	}
	fmt.Fprintf(sb, "Run ID:    %s\n", report.RunID)
	fmt.Fprintf(sb, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:    %s\n\n", statusText(report))
}

func statusText(report *model.CrawlReport) string {
	if report.Stopped {
		return "Stopped (partial results)"
	}
	return "Complete"
}

func (w *SimpleWriter) writeStats(sb *strings.Builder, report *model.CrawlReport) {
	section(sb, "SUMMARY")

	s := report.Stats
	fmt.Fprintf(sb, "  VISITED:      %d\n", s.Visited)
	fmt.Fprintf(sb, "  FAILED:       %d\n", s.Failed)
	fmt.Fprintf(sb, "  REDIRECTED:   %d\n", s.Redirected)
	fmt.Fprintf(sb, "  OUT OF SCOPE: %d\n", s.OutOfScope)
	fmt.Fprintf(sb, "  EXCLUDED:     %d\n", s.Excluded)
	fmt.Fprintf(sb, "  TOO DEEP:     %d\n", s.TooDeep)
	fmt.Fprintf(sb, "  BATCHES:      %d (%d requests)\n", s.Batches, s.Requests)
	if report.GraphEnabled {
		fmt.Fprintf(sb, "  EDGES:        %d\n", s.Edges)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.CrawlReport) {
	if !report.HasFailures() {
		return
	}
	section(sb, "FAILED URLS")

	for _, f := range report.Failures {
		fmt.Fprintf(sb, "  [!] %s\n", f.URL)
		fmt.Fprintf(sb, "      %s (attempts: %d)\n", f.Error, f.Attempts)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CrawlReport) {
	section(sb, "PAGES")

	for _, p := range report.Pages {
		fmt.Fprintf(sb, "  [%d] %s\n", p.StatusCode, p.URL)
		if p.Title != "" {
			fmt.Fprintf(sb, "        %s\n", p.Title)
		}
	}
	sb.WriteString("\n")
}
