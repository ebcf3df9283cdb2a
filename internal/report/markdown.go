package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitemapper/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// maxMarkdownPages caps the page table so reports of large sites stay
// readable. The sitemap and JSON outputs carry the full list.
const maxMarkdownPages = 200

// MarkdownWriter outputs reports in Markdown, suitable for sharing or
// committing next to a site's sources.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeFailures(md, report)
	w.writePages(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by sitemapper, run `%s`*", report.RunID)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Sitemapper Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed", "`" + report.Seed + "`"},
	}
	if report.Domain != "" {
		rows = append(rows, []string{"Domain", "`" + report.Domain + "`"})
	}
	rows = append(rows,
		[]string{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Duration", report.Duration().Round(time.Millisecond).String()},
		[]string{"Status", statusText(report)},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Summary")
	md.PlainText("")

	s := report.Stats
	counts := []struct {
		label string
		value int
	}{
		{"visited", s.Visited},
		{"failed", s.Failed},
		{"redirected", s.Redirected},
		{"out of scope", s.OutOfScope},
		{"excluded", s.Excluded},
		{"too deep", s.TooDeep},
	}

	title := cases.Title(language.English)
	rows := make([][]string, 0, len(counts)+1)
	for _, c := range counts {
		rows = append(rows, []string{title.String(c.label), strconv.Itoa(c.value)})
	}
	if report.GraphEnabled {
		rows = append(rows, []string{"Edges", strconv.Itoa(s.Edges)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Visited+s.Failed > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("URL Outcomes"),
			piechart.WithShowData(true),
		)
		for _, c := range counts[:2] {
			if c.value > 0 {
				chart.LabelAndIntValue(title.String(c.label), uint64(c.value))
			}
		}
		if rejected := s.Excluded + s.TooDeep + s.OutOfScope; rejected > 0 {
			chart.LabelAndIntValue("Skipped", uint64(rejected))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case report.Stopped:
		md.Warningf("The crawl was stopped early. %d page(s) were visited before it ended.", s.Visited)
	case s.Failed > 0:
		md.Importantf("%d URL(s) could not be fetched. See the list below.", s.Failed)
	default:
		md.Tip("Every discovered page was fetched successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.CrawlReport) {
	if !report.HasFailures() {
		return
	}
	md.H2("Failed URLs")
	md.PlainText("")

	rows := make([][]string, len(report.Failures))
	for i, f := range report.Failures {
		status := "-"
		if f.StatusCode > 0 {
			status = strconv.Itoa(f.StatusCode)
		}
		rows[i] = []string{f.URL, status, strconv.Itoa(f.Attempts), truncateString(f.Error, 60)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Attempts", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Pages")
	md.PlainText("")

	if len(report.Pages) == 0 {
		md.PlainText("No pages visited.")
		md.PlainText("")
		return
	}

	pages := report.Pages
	if len(pages) > maxMarkdownPages {
		pages = pages[:maxMarkdownPages]
	}
	rows := make([][]string, len(pages))
	for i, p := range pages {
		title := p.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{p.URL, strconv.Itoa(p.Depth), strconv.Itoa(p.StatusCode), truncateString(title, 50)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Status", "Title"},
		Rows:   rows,
	})
	md.PlainText("")

	if rest := len(report.Pages) - len(pages); rest > 0 {
		md.Note(fmt.Sprintf("%d more page(s) are listed in the sitemap.", rest))
		md.PlainText("")
	}
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
