// Package crawler implements the crawl engine of sitemapper.
//
// # Architecture
//
// Spider drives the crawl as an explicit worklist processed in batches:
//
//  1. take up to maxRequests targets from the Frontier
//  2. hand them to a fetcher.Executor, which fetches them concurrently and
//     returns once all of them are done
//  3. merge each outcome: failures go to the error set, redirects are
//     re-checked against the scope, pages are recorded as visited and
//     their links are admitted one hop deeper
//
// The loop ends when the frontier is empty, Stop is called or the context
// is cancelled. Stop is checked between batches and before each outcome,
// so a stopped crawl never records a partially processed page.
//
// # Components
//
//   - Spider: the orchestrator and its lifecycle (idle, running, draining, done)
//   - Frontier: pending targets, the error set and admission filtering
//   - ExtractLinks / ResolveLinks: pattern based anchor discovery
//   - PageTitle: <title> lookup used for reports only
//
// # Usage
//
//	exec := fetcher.NewHTTPExecutor(fetcher.WithConcurrency(10))
//	spider, err := crawler.NewSpider("http://example.com/", exec,
//		crawler.WithMaxStepDepth(3),
//		crawler.WithBuildGraph(true),
//	)
//	if err != nil {
//		return err
//	}
//	visited, err := spider.Start(ctx)
//	sitemap := spider.SitemapDocument()
package crawler
