package fetcher

import (
	"context"
	"time"

	"github.com/nao1215/sitemapper/internal/urlscope"
	"golang.org/x/sync/errgroup"
)

// FetchBatch fetches urls with at most Concurrency() requests in flight.
// It blocks until every fetch has completed and returns one Outcome per
// URL, in input order.
//
// Each goroutine writes only its own slot of the result slice, so no lock
// is needed. Fetch failures are reported in the outcomes and never cancel
// sibling fetches.
func (e *HTTPExecutor) FetchBatch(ctx context.Context, urls []urlscope.CanonicalURL) []Outcome {
	outcomes := make([]Outcome, len(urls))
	if len(urls) == 0 {
		return outcomes
	}

	e.logger.Debug("fetching batch",
		"size", len(urls),
		"concurrency", e.concurrency,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, target := range urls {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				outcomes[i] = Outcome{RequestedURL: target, Failed: true, Err: ctx.Err()}
				return nil
			default:
			}

			outcomes[i] = e.FetchOne(ctx, target)
			if outcomes[i].Failed {
				e.logger.Debug("fetch failed",
					"url", target,
					"attempts", outcomes[i].Attempts,
					"error", outcomes[i].Err,
				)
			}
			return nil
		})
	}

	// Goroutines never return errors.
	_ = g.Wait()

	e.logger.Debug("batch complete",
		"size", len(urls),
		"elapsed", time.Since(startTime),
	)
	return outcomes
}
