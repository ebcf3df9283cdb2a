package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nao1215/sitemapper/internal/fetcher"
	"github.com/nao1215/sitemapper/internal/graph"
	"github.com/nao1215/sitemapper/internal/metrics"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/urlscope"
)

// DefaultMaxRequests is the default batch size.
const DefaultMaxRequests = 100

// State is the lifecycle state of a Spider.
type State int32

const (
	// StateIdle is the state before Start.
	StateIdle State = iota
	// StateRunning means batches are being dispatched.
	StateRunning
	// StateDraining means Stop was requested and the current batch is
	// being abandoned.
	StateDraining
	// StateDone means Start has returned.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Progress is reported after every batch.
type Progress struct {
	Batch   int
	Visited int
	Failed  int
	Pending int
}

// PageVisit describes a page that has just been recorded as visited.
type PageVisit struct {
	URL          urlscope.CanonicalURL
	RequestedURL urlscope.CanonicalURL
	Depth        int
	Outcome      fetcher.Outcome
	Links        []urlscope.CanonicalURL
}

// Spider discovers every in-scope page reachable from a seed URL.
//
// All crawl state (frontier, graph, error set, report) is owned by the
// goroutine running Start. Other goroutines may only call Stop and State
// while a crawl is running; results are read after Start returns.
type Spider struct {
	seed  urlscope.CanonicalURL
	exec  fetcher.Executor
	canon *urlscope.Canonicalizer
	scope *urlscope.Scope

	// domain is the configured registrable domain. Empty means the scope
	// is the seed host.
	domain string

	exclude      []*regexp.Regexp
	maxRequests  int
	maxPathDepth int
	maxStepDepth int
	buildGraph   bool

	logger     *slog.Logger
	metrics    *metrics.Collector
	onProgress func(Progress)
	onPage     func(PageVisit)

	state atomic.Int32
	stop  atomic.Bool

	graph    *graph.Graph
	frontier *Frontier
	report   *model.CrawlReport
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithDomain restricts the crawl to hosts containing domain.
func WithDomain(domain string) SpiderOption {
	return func(s *Spider) {
		s.domain = strings.TrimSpace(domain)
	}
}

// WithExcludePatterns skips every URL matching one of patterns.
func WithExcludePatterns(patterns []*regexp.Regexp) SpiderOption {
	return func(s *Spider) {
		s.exclude = patterns
	}
}

// WithMaxRequests sets the maximum number of URLs fetched per batch.
func WithMaxRequests(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.maxRequests = n
		}
	}
}

// WithMaxPathDepth skips URLs whose path contains more than n slashes.
// 0 means unlimited.
func WithMaxPathDepth(n int) SpiderOption {
	return func(s *Spider) {
		s.maxPathDepth = max(n, 0)
	}
}

// WithMaxStepDepth limits how many hops away from the seed pages are
// fetched. 0 means unlimited.
func WithMaxStepDepth(n int) SpiderOption {
	return func(s *Spider) {
		s.maxStepDepth = max(n, 0)
	}
}

// WithBuildGraph enables recording of link edges.
func WithBuildGraph(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.buildGraph = enabled
	}
}

// WithCanonicalizer replaces the default fragment-stripping
// canonicalizer.
func WithCanonicalizer(c *urlscope.Canonicalizer) SpiderOption {
	return func(s *Spider) {
		if c != nil {
			s.canon = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// WithSpiderMetrics records page and batch metrics into c.
func WithSpiderMetrics(c *metrics.Collector) SpiderOption {
	return func(s *Spider) {
		s.metrics = c
	}
}

// WithProgress registers a callback invoked after every batch.
func WithProgress(fn func(Progress)) SpiderOption {
	return func(s *Spider) {
		s.onProgress = fn
	}
}

// WithPageHook registers a callback invoked for every visited page.
func WithPageHook(fn func(PageVisit)) SpiderOption {
	return func(s *Spider) {
		s.onPage = fn
	}
}

// NewSpider creates a Spider for seed. A seed without scheme is treated
// as http.
func NewSpider(seed string, exec fetcher.Executor, opts ...SpiderOption) (*Spider, error) {
	if exec == nil {
		return nil, ErrNoExecutor
	}

	s := &Spider{
		exec:        exec,
		canon:       urlscope.NewCanonicalizer(),
		maxRequests: DefaultMaxRequests,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	seed = strings.TrimSpace(seed)
	if seed != "" && !strings.Contains(seed, "://") {
		seed = "http://" + seed
	}
	canonical, err := s.canon.Canonicalize(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	s.seed = canonical
	s.scope = urlscope.NewScope(canonical, s.domain)

	return s, nil
}

// Seed returns the canonical seed URL.
func (s *Spider) Seed() urlscope.CanonicalURL {
	return s.seed
}

// State returns the current lifecycle state.
func (s *Spider) State() State {
	return State(s.state.Load())
}

// Stop asks a running crawl to finish. Fetches in flight complete, their
// results are discarded and Start returns what was collected so far. Stop
// may be called from any goroutine, any number of times.
func (s *Spider) Stop() {
	s.stop.Store(true)
	s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
}

func (s *Spider) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		s.Stop()
	}
	return s.stop.Load()
}

// Start runs the crawl and returns the visited URLs in visitation order.
// Cancelling ctx has the same effect as Stop. A Spider can be started only
// once; further calls return ErrAlreadyStarted.
func (s *Spider) Start(ctx context.Context) ([]urlscope.CanonicalURL, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyStarted
	}
	defer s.state.Store(int32(StateDone))

	s.graph = graph.New(s.buildGraph)
	s.frontier = NewFrontier(s.graph,
		WithFrontierExcludePatterns(s.exclude),
		WithFrontierMaxPathDepth(s.maxPathDepth),
		WithFrontierMaxStepDepth(s.maxStepDepth),
	)
	s.report = model.NewCrawlReport(s.seed.String())
	s.report.Domain = s.scope.Domain()
	s.report.GraphEnabled = s.buildGraph

	s.logger.Info("starting crawl",
		"seed", s.seed,
		"domain", s.scope.Domain(),
		"max_requests", s.maxRequests,
		"max_step_depth", s.maxStepDepth,
		"max_path_depth", s.maxPathDepth,
	)

	s.frontier.Admit(s.seed, 0)

	for !s.stopRequested(ctx) {
		batch := s.frontier.TakeBatch(s.maxRequests)
		if len(batch) == 0 {
			break
		}
		s.runBatch(ctx, batch)
	}

	s.finish()
	if len(s.report.Failures) > 0 {
		s.logger.Debug("failed to fetch", "urls", s.report.FailedURLs())
	}
	s.logger.Info("crawl finished",
		"visited", s.graph.Len(),
		"failed", len(s.report.Failures),
		"stopped", s.report.Stopped,
		"elapsed", s.report.Duration(),
	)
	return s.graph.Keys(), nil
}

func (s *Spider) runBatch(ctx context.Context, batch []Target) {
	s.report.Stats.Batches++
	s.report.Stats.Requests += len(batch)
	s.metrics.ObserveBatch(s.frontier.Len())

	urls := make([]urlscope.CanonicalURL, len(batch))
	depths := make(map[urlscope.CanonicalURL]int, len(batch))
	for i, t := range batch {
		urls[i] = t.URL
		depths[t.URL] = t.Depth
	}

	s.logger.Debug("crawling batch",
		"batch", s.report.Stats.Batches,
		"visited", s.graph.Len(),
		"size", len(urls),
		"pending", s.frontier.Len(),
	)

	outcomes := s.exec.FetchBatch(ctx, urls)
	for _, out := range outcomes {
		if s.stopRequested(ctx) {
			return
		}
		depth, ok := depths[out.RequestedURL]
		if !ok {
			continue
		}
		s.handleOutcome(Target{URL: out.RequestedURL, Depth: depth}, out)
	}

	if s.onProgress != nil {
		s.onProgress(Progress{
			Batch:   s.report.Stats.Batches,
			Visited: s.graph.Len(),
			Failed:  len(s.report.Failures),
			Pending: s.frontier.Len(),
		})
	}
}

// handleOutcome merges one fetch result into the crawl state.
func (s *Spider) handleOutcome(target Target, out fetcher.Outcome) {
	if out.Failed {
		if s.graph.Visited(target.URL) {
			// Already reached through a redirect earlier in this batch.
			s.logger.Debug("ignoring failure of visited page", "url", target.URL, "error", out.Err)
			return
		}
		s.frontier.MarkFailed(target.URL)
		errText := ""
		if out.Err != nil {
			errText = out.Err.Error()
		}
		s.report.Failures = append(s.report.Failures, model.Failure{
			URL:        target.URL.String(),
			Error:      errText,
			StatusCode: out.StatusCode,
			Attempts:   out.Attempts,
		})
		s.metrics.ObservePage(metrics.OutcomeFailed)
		s.logger.Debug("page failed", "url", target.URL, "attempts", out.Attempts, "error", out.Err)
		return
	}

	final := target.URL
	if out.Redirected() {
		resolved, ok := s.resolveRedirect(target, out)
		if !ok {
			return
		}
		final = resolved
	}

	if s.graph.Visited(final) {
		return
	}
	s.graph.RecordVisited(final)

	links := ResolveLinks(out.Body, final, s.scope, s.canon)
	for _, link := range links {
		s.frontier.Admit(link, target.Depth+1)
	}
	s.graph.RecordEdges(final, links)

	record := model.PageRecord{
		URL:         final.String(),
		Depth:       target.Depth,
		StatusCode:  out.StatusCode,
		ContentType: out.ContentType,
		Size:        len(out.Body),
		Hash:        model.Fingerprint(out.Body),
		OutLinks:    len(links),
		FetchedAt:   time.Now(),
	}
	if final != target.URL {
		record.RequestedURL = target.URL.String()
	}
	if IsHTML(out.ContentType) {
		record.Title = PageTitle(out.Body)
	}
	s.report.Pages = append(s.report.Pages, record)
	s.metrics.ObservePage(metrics.OutcomeVisited)

	if s.onPage != nil {
		s.onPage(PageVisit{
			URL:          final,
			RequestedURL: target.URL,
			Depth:        target.Depth,
			Outcome:      out,
			Links:        links,
		})
	}
}

// resolveRedirect applies the scope re-check to the final URL of a
// redirected fetch. It returns false when the page must not be recorded.
func (s *Spider) resolveRedirect(target Target, out fetcher.Outcome) (urlscope.CanonicalURL, bool) {
	final, err := s.canon.Canonicalize(out.FinalURL)
	if err != nil {
		s.frontier.MarkResolved(target.URL)
		s.metrics.ObservePage(metrics.OutcomeDropped)
		s.logger.Debug("dropping redirect with malformed target", "url", target.URL, "final", out.FinalURL, "error", err)
		return "", false
	}
	if final == target.URL {
		// The redirect chain ended on the same canonical URL.
		return final, true
	}

	s.report.Stats.Redirected++
	s.frontier.MarkResolved(target.URL)
	s.graph.RecordEdge(target.URL, final)

	if !s.scope.SameDomain(final.String()) || s.frontier.Excluded(final) {
		s.report.Stats.OutOfScope++
		s.metrics.ObservePage(metrics.OutcomeExcluded)
		s.logger.Debug("dropping redirect out of scope", "url", target.URL, "final", final)
		return "", false
	}
	if s.frontier.Failed(final) || s.frontier.Pending(final) {
		// The final URL is handled through its own frontier entry.
		return "", false
	}
	return final, true
}

func (s *Spider) finish() {
	s.report.FinishedAt = time.Now()
	s.report.Stopped = s.stop.Load()

	stats := s.frontier.Stats()
	s.report.Stats.Visited = s.graph.Len()
	s.report.Stats.Failed = len(s.report.Failures)
	s.report.Stats.Excluded = stats.Excluded
	s.report.Stats.TooDeep = stats.TooDeep
	s.report.Stats.Duplicates = stats.Duplicates
	s.report.Stats.Edges = s.graph.EdgeCount()

	if s.buildGraph {
		for _, from := range s.graph.Sources() {
			for _, to := range s.graph.Edges(from) {
				s.report.Edges = append(s.report.Edges, model.Edge{From: from.String(), To: to.String()})
			}
		}
	}
}

// SitemapDocument renders the sitemap of the visited pages. It returns
// an empty sitemap before Start.
func (s *Spider) SitemapDocument() string {
	if s.graph == nil {
		return graph.New(false).SitemapDocument()
	}
	return s.graph.SitemapDocument()
}

// ExportGraph returns the link graph. ok is false when graph building was
// disabled or the crawl has not run.
func (s *Spider) ExportGraph() (map[urlscope.CanonicalURL][]urlscope.CanonicalURL, bool) {
	if s.graph == nil {
		return nil, false
	}
	return s.graph.ExportGraph()
}

// Graph returns the underlying graph accumulator, or nil before Start.
func (s *Spider) Graph() *graph.Graph {
	return s.graph
}

// FailedURLs returns the URLs that failed after all retries.
func (s *Spider) FailedURLs() []urlscope.CanonicalURL {
	if s.frontier == nil {
		return nil
	}
	return s.frontier.FailedURLs()
}

// Report returns the crawl report, or nil before Start.
func (s *Spider) Report() *model.CrawlReport {
	return s.report
}
