package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/crawler"
	"github.com/nao1215/sitemapper/internal/export"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/report"
)

// writeOutputs writes the sitemap and every requested export of a
// finished crawl. "-" paths go to stdout.
func writeOutputs(cfg *config.Config, spider *crawler.Spider, stdout io.Writer) error {
	if cfg.SitemapFile != "" {
		if err := export.WriteSitemap(cfg.SitemapFile, spider.SitemapDocument(), stdout); err != nil {
			return fmt.Errorf("failed to write sitemap: %w", err)
		}
	}

	rep := spider.Report()
	if adjacency, ok := spider.ExportGraph(); ok {
		if cfg.GraphJSONFile != "" {
			if err := export.WriteNodeLink(cfg.GraphJSONFile, adjacency, stdout); err != nil {
				return fmt.Errorf("failed to write graph JSON: %w", err)
			}
		}
		if cfg.GraphGEXFFile != "" {
			err := export.WriteGEXF(cfg.GraphGEXFFile, adjacency, stdout,
				export.WithGEXFDescription("link graph of "+rep.Seed),
				export.WithGEXFModified(rep.FinishedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to write graph GEXF: %w", err)
			}
		}
		if cfg.EdgesCSVFile != "" {
			if err := export.WriteEdgesCSV(cfg.EdgesCSVFile, rep.Edges, stdout); err != nil {
				return fmt.Errorf("failed to write edge list: %w", err)
			}
		}
	}

	if cfg.FailedCSVFile != "" {
		if err := export.WriteFailuresCSV(cfg.FailedCSVFile, rep.Failures, stdout); err != nil {
			return fmt.Errorf("failed to write failed URLs: %w", err)
		}
	}
	return nil
}

// writeSummary writes the crawl report in the selected format to out.
// With cfg.ReportFile set the selected format goes to that file and out
// gets the plain text summary.
func writeSummary(cfg *config.Config, rep *model.CrawlReport, out io.Writer) error {
	w := summaryWriter(cfg, out)
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// reports list every crawled URL, some of them behind a login
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = report.NewMultiWriter(
			summaryWriter(cfg, f),
			report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose)),
		)
	}

	if _, err := w.Write(rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func summaryWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
