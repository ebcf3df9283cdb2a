package main

import (
	"fmt"
	"io"

	"github.com/nao1215/sitemapper/internal/crawler"
	"github.com/schollz/progressbar/v3"
)

// progressBar renders crawl progress on a terminal. The total grows as
// new links are discovered. A nil *progressBar does nothing.
type progressBar struct {
	bar *progressbar.ProgressBar
	w   io.Writer
}

func newProgressBar(w io.Writer) *progressBar {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &progressBar{bar: bar, w: w}
}

// Update is called by the spider after every batch.
func (p *progressBar) Update(pr crawler.Progress) {
	if p == nil {
		return
	}
	done := pr.Visited + pr.Failed
	p.bar.ChangeMax(done + pr.Pending)
	p.bar.Describe(fmt.Sprintf("batch %d, %d failed", pr.Batch, pr.Failed))
	_ = p.bar.Set(done) //nolint:errcheck // rendering errors are not actionable
}

// Finish completes the bar and moves to a new line.
func (p *progressBar) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish() //nolint:errcheck // rendering errors are not actionable
	fmt.Fprintln(p.w)
}
