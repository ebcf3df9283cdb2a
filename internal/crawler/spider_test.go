package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitemapper/internal/fetcher"
	"github.com/nao1215/sitemapper/internal/urlscope"
)

// fakePage is a canned response for fakeExecutor.
type fakePage struct {
	final string
	body  string
	fail  bool
}

// fakeExecutor serves canned outcomes and records the batches it got.
type fakeExecutor struct {
	mu      sync.Mutex
	pages   map[urlscope.CanonicalURL]fakePage
	batches [][]urlscope.CanonicalURL
	fetched map[urlscope.CanonicalURL]int
	onBatch func(n int)
}

func newFakeExecutor(pages map[urlscope.CanonicalURL]fakePage) *fakeExecutor {
	return &fakeExecutor{pages: pages, fetched: make(map[urlscope.CanonicalURL]int)}
}

func (f *fakeExecutor) FetchBatch(_ context.Context, urls []urlscope.CanonicalURL) []fetcher.Outcome {
	f.mu.Lock()
	f.batches = append(f.batches, slices.Clone(urls))
	n := len(f.batches)
	f.mu.Unlock()

	if f.onBatch != nil {
		f.onBatch(n)
	}

	outcomes := make([]fetcher.Outcome, len(urls))
	for i, u := range urls {
		f.mu.Lock()
		f.fetched[u]++
		f.mu.Unlock()

		p, ok := f.pages[u]
		if !ok || p.fail {
			outcomes[i] = fetcher.Outcome{
				RequestedURL: u,
				Failed:       true,
				Attempts:     1,
				StatusCode:   http.StatusNotFound,
				Err:          &fetcher.HTTPStatusError{URL: u.String(), StatusCode: http.StatusNotFound},
			}
			continue
		}
		final := p.final
		if final == "" {
			final = u.String()
		}
		outcomes[i] = fetcher.Outcome{
			RequestedURL: u,
			FinalURL:     final,
			Body:         []byte(p.body),
			ContentType:  "text/html",
			StatusCode:   http.StatusOK,
			Attempts:     1,
		}
	}
	return outcomes
}

func (f *fakeExecutor) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func anchors(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>page</title></head><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func mustSpider(t *testing.T, seed string, exec fetcher.Executor, opts ...SpiderOption) *Spider {
	t.Helper()
	s, err := NewSpider(seed, exec, opts...)
	if err != nil {
		t.Fatalf("NewSpider() error = %v", err)
	}
	return s
}

func TestSpiderScenarios(t *testing.T) {
	t.Parallel()

	t.Run("fragment stripped, relative resolved, external dropped", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":      {body: anchors("/about", "http://other.com/x", "page#frag")},
			"http://example.com/about": {body: anchors()},
			"http://example.com/page":  {body: anchors("/about")},
		})
		s := mustSpider(t, "http://example.com/", exec)

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		want := []urlscope.CanonicalURL{
			"http://example.com/",
			"http://example.com/about",
			"http://example.com/page",
		}
		if !slices.Equal(visited, want) {
			t.Errorf("visited = %v, want %v", visited, want)
		}
		if _, ok := exec.fetched["http://other.com/x"]; ok {
			t.Error("external url must never be fetched")
		}
		if s.State() != StateDone {
			t.Errorf("State() = %v, want done", s.State())
		}
		if _, ok := s.ExportGraph(); ok {
			t.Error("graph export must be unavailable when graph building is off")
		}
	})

	t.Run("step depth 1 discovers but never fetches depth 2", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":  {body: anchors("/a")},
			"http://example.com/a": {body: anchors("/b")},
			"http://example.com/b": {body: anchors()},
		})
		s := mustSpider(t, "http://example.com/", exec, WithMaxStepDepth(1), WithBuildGraph(true))

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if slices.Contains(visited, "http://example.com/b") {
			t.Error("b is beyond the step limit and must not be visited")
		}
		if exec.fetched["http://example.com/b"] != 0 {
			t.Error("b must never be fetched")
		}
		g, ok := s.ExportGraph()
		if !ok {
			t.Fatal("graph export should be available")
		}
		if !slices.Contains(g["http://example.com/a"], "http://example.com/b") {
			t.Errorf("edge a->b missing: %v", g)
		}
	})

	t.Run("max requests 2 with 5 links", func(t *testing.T) {
		t.Parallel()

		pages := map[urlscope.CanonicalURL]fakePage{
			"http://example.com/": {body: anchors("/1", "/2", "/3", "/4", "/5")},
		}
		for i := 1; i <= 4; i++ {
			pages[urlscope.CanonicalURL(fmt.Sprintf("http://example.com/%d", i))] = fakePage{body: anchors()}
		}
		// /5 is missing and fails.
		exec := newFakeExecutor(pages)
		s := mustSpider(t, "http://example.com/", exec, WithMaxRequests(2))

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if got := exec.batchSizes(); !slices.Equal(got, []int{1, 2, 2, 1}) {
			t.Errorf("batch sizes = %v, want [1 2 2 1]", got)
		}
		if len(visited) != 5 {
			t.Errorf("visited %d pages, want 5", len(visited))
		}
		if got := s.FailedURLs(); !slices.Equal(got, []urlscope.CanonicalURL{"http://example.com/5"}) {
			t.Errorf("FailedURLs() = %v", got)
		}
	})

	t.Run("self-normalizing redirect is visited once", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com":   {final: "http://example.com/", body: anchors("/", "/x")},
			"http://example.com/":  {body: anchors("/x")},
			"http://example.com/x": {body: anchors("http://example.com", "http://example.com/")},
		})
		s := mustSpider(t, "http://example.com", exec, WithBuildGraph(true))

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		want := []urlscope.CanonicalURL{"http://example.com/", "http://example.com/x"}
		if !slices.Equal(visited, want) {
			t.Errorf("visited = %v, want %v", visited, want)
		}
		if exec.fetched["http://example.com"] != 1 {
			t.Errorf("redirect source fetched %d times, want 1", exec.fetched["http://example.com"])
		}
		g, _ := s.ExportGraph()
		if !slices.Contains(g["http://example.com"], "http://example.com/") {
			t.Errorf("redirect edge missing: %v", g)
		}
		if s.Report().Stats.Redirected != 1 {
			t.Errorf("Redirected = %d, want 1", s.Report().Stats.Redirected)
		}
	})

	t.Run("redirect out of domain records the edge only", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":     {body: anchors("/go")},
			"http://example.com/go":   {final: "http://elsewhere.org/landing", body: anchors("/z")},
			"http://elsewhere.org/z":  {body: anchors()},
			"http://example.com/next": {body: anchors()},
		})
		s := mustSpider(t, "http://example.com/", exec, WithBuildGraph(true))

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !slices.Equal(visited, []urlscope.CanonicalURL{"http://example.com/"}) {
			t.Errorf("visited = %v", visited)
		}
		g, _ := s.ExportGraph()
		if !slices.Contains(g["http://example.com/go"], "http://elsewhere.org/landing") {
			t.Errorf("edge go->landing missing: %v", g)
		}
		if _, ok := g["http://elsewhere.org/landing"]; ok {
			t.Error("out of domain target must not become a node with edges")
		}
		if s.Report().Stats.OutOfScope != 1 {
			t.Errorf("OutOfScope = %d, want 1", s.Report().Stats.OutOfScope)
		}
	})

	t.Run("redirect within the registrable domain is followed", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":          {final: "http://www.example.com/home", body: anchors("/about")},
			"http://www.example.com/about": {body: anchors()},
		})
		s := mustSpider(t, "http://example.com/", exec)

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		// Relative links are resolved against the final URL.
		want := []urlscope.CanonicalURL{"http://www.example.com/home", "http://www.example.com/about"}
		if !slices.Equal(visited, want) {
			t.Errorf("visited = %v", visited)
		}
	})

	t.Run("redirect to excluded target is dropped", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":      {body: anchors("/login")},
			"http://example.com/login": {final: "http://example.com/private/login", body: anchors()},
		})
		s := mustSpider(t, "http://example.com/", exec,
			WithExcludePatterns([]*regexp.Regexp{regexp.MustCompile(`/private/`)}),
		)

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !slices.Equal(visited, []urlscope.CanonicalURL{"http://example.com/"}) {
			t.Errorf("visited = %v", visited)
		}
	})

	t.Run("failed urls are recorded once and not retried", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":  {body: anchors("/broken", "/a")},
			"http://example.com/a": {body: anchors("/broken")},
		})
		s := mustSpider(t, "http://example.com/", exec)

		if _, err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if exec.fetched["http://example.com/broken"] != 1 {
			t.Errorf("broken fetched %d times, want 1", exec.fetched["http://example.com/broken"])
		}
		report := s.Report()
		if len(report.Failures) != 1 || report.Failures[0].URL != "http://example.com/broken" {
			t.Errorf("Failures = %+v", report.Failures)
		}
		if report.Failures[0].StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d", report.Failures[0].StatusCode)
		}
	})

	t.Run("redirect target failing in the same batch stays visited only", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":  {body: anchors("/a", "/b")},
			"http://example.com/a": {final: "http://example.com/b", body: anchors()},
			"http://example.com/b": {fail: true},
		})
		s := mustSpider(t, "http://example.com/", exec)

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		want := []urlscope.CanonicalURL{"http://example.com/", "http://example.com/b"}
		if !slices.Equal(visited, want) {
			t.Errorf("visited = %v, want %v", visited, want)
		}
		if got := s.FailedURLs(); len(got) != 0 {
			t.Errorf("FailedURLs() = %v, want none", got)
		}
		if got := s.Report().Failures; len(got) != 0 {
			t.Errorf("Failures = %+v, want none", got)
		}
	})

	t.Run("exclusions and path depth bound reachability", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":         {body: anchors("/a", "/a/b", "/a/b/c", "/skip.pdf")},
			"http://example.com/a":        {body: anchors("/a/x")},
			"http://example.com/a/b":      {body: anchors()},
			"http://example.com/a/x":      {body: anchors()},
			"http://example.com/a/b/c":    {body: anchors()},
			"http://example.com/skip.pdf": {body: anchors()},
		})
		patterns, err := CompilePatterns(`\.pdf$`)
		if err != nil {
			t.Fatal(err)
		}
		s := mustSpider(t, "http://example.com/", exec, WithExcludePatterns(patterns), WithMaxPathDepth(2))

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		want := []urlscope.CanonicalURL{
			"http://example.com/",
			"http://example.com/a",
			"http://example.com/a/b",
			"http://example.com/a/x",
		}
		if !slices.Equal(visited, want) {
			t.Errorf("visited = %v, want %v", visited, want)
		}
		stats := s.Report().Stats
		if stats.Excluded != 1 || stats.TooDeep != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("configured domain follows subdomains", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://www.example.com/":      {body: anchors("http://blog.example.com/post", "http://other.org/")},
			"http://blog.example.com/post": {body: anchors()},
		})
		s := mustSpider(t, "http://www.example.com/", exec, WithDomain("example.com"))

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !slices.Contains(visited, "http://blog.example.com/post") {
			t.Errorf("visited = %v", visited)
		}
		if s.Report().Domain != "example.com" {
			t.Errorf("Domain = %q", s.Report().Domain)
		}
	})
}

func TestSpiderLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("second start fails", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/": {body: anchors()},
		})
		s := mustSpider(t, "http://example.com/", exec)
		if s.State() != StateIdle {
			t.Errorf("State() = %v, want idle", s.State())
		}
		if _, err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if _, err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
		}
	})

	t.Run("stop between batches keeps partial results", func(t *testing.T) {
		t.Parallel()

		pages := map[urlscope.CanonicalURL]fakePage{
			"http://example.com/": {body: anchors("/1", "/2", "/3")},
		}
		for i := 1; i <= 3; i++ {
			pages[urlscope.CanonicalURL(fmt.Sprintf("http://example.com/%d", i))] = fakePage{
				body: anchors(fmt.Sprintf("/%d/next", i)),
			}
		}
		exec := newFakeExecutor(pages)

		var s *Spider
		exec.onBatch = func(n int) {
			if n == 2 {
				s.Stop()
			}
		}
		s = mustSpider(t, "http://example.com/", exec)

		visited, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		// The second batch was fetched but its outcomes are discarded.
		if !slices.Equal(visited, []urlscope.CanonicalURL{"http://example.com/"}) {
			t.Errorf("visited = %v", visited)
		}
		if len(exec.batchSizes()) != 2 {
			t.Errorf("batches = %v, want 2", exec.batchSizes())
		}
		if !s.Report().Stopped {
			t.Error("report should be marked stopped")
		}
		if s.State() != StateDone {
			t.Errorf("State() = %v", s.State())
		}
	})

	t.Run("cancelled context behaves like stop", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/": {body: anchors("/a")},
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s := mustSpider(t, "http://example.com/", exec)
		visited, err := s.Start(ctx)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(visited) != 0 || len(exec.batchSizes()) != 0 {
			t.Errorf("visited = %v, batches = %v", visited, exec.batchSizes())
		}
	})

	t.Run("progress and page hooks", func(t *testing.T) {
		t.Parallel()

		exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
			"http://example.com/":  {body: anchors("/a")},
			"http://example.com/a": {body: anchors()},
		})
		var progress []Progress
		var pages []urlscope.CanonicalURL
		s := mustSpider(t, "http://example.com/", exec,
			WithProgress(func(p Progress) { progress = append(progress, p) }),
			WithPageHook(func(v PageVisit) { pages = append(pages, v.URL) }),
		)
		if _, err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(progress) != 2 || progress[1].Visited != 2 || progress[1].Pending != 0 {
			t.Errorf("progress = %+v", progress)
		}
		if !slices.Equal(pages, []urlscope.CanonicalURL{"http://example.com/", "http://example.com/a"}) {
			t.Errorf("pages = %v", pages)
		}
	})

	t.Run("invalid construction", func(t *testing.T) {
		t.Parallel()

		if _, err := NewSpider("http://example.com/", nil); !errors.Is(err, ErrNoExecutor) {
			t.Errorf("nil executor: err = %v", err)
		}
		if _, err := NewSpider("ftp://example.com/", newFakeExecutor(nil)); !errors.Is(err, ErrInvalidSeed) {
			t.Errorf("ftp seed: err = %v", err)
		}
		if _, err := NewSpider("", newFakeExecutor(nil)); !errors.Is(err, ErrInvalidSeed) {
			t.Errorf("empty seed: err = %v", err)
		}
		s, err := NewSpider("example.com/docs", newFakeExecutor(nil))
		if err != nil {
			t.Fatalf("scheme-less seed: %v", err)
		}
		if s.Seed() != "http://example.com/docs" {
			t.Errorf("Seed() = %q", s.Seed())
		}
	})

	t.Run("results before start", func(t *testing.T) {
		t.Parallel()

		s := mustSpider(t, "http://example.com/", newFakeExecutor(nil))
		if !strings.Contains(s.SitemapDocument(), "<urlset") {
			t.Error("empty sitemap expected")
		}
		if s.FailedURLs() != nil || s.Report() != nil || s.Graph() != nil {
			t.Error("no results before start")
		}
	})
}

func TestSpiderReport(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor(map[urlscope.CanonicalURL]fakePage{
		"http://example.com/":  {body: anchors("/a", "/missing")},
		"http://example.com/a": {body: anchors("/")},
	})
	s := mustSpider(t, "http://example.com/", exec, WithBuildGraph(true))
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	r := s.Report()
	if r.Seed != "http://example.com/" || !r.GraphEnabled {
		t.Errorf("Seed = %q, GraphEnabled = %v", r.Seed, r.GraphEnabled)
	}
	if len(r.Pages) != 2 || r.Pages[0].Title != "page" || r.Pages[0].Hash == "" {
		t.Errorf("Pages = %+v", r.Pages)
	}
	if r.Pages[1].Depth != 1 || r.Pages[0].OutLinks != 2 {
		t.Errorf("depth/outlinks mismatch: %+v", r.Pages)
	}
	if r.Stats.Visited != 2 || r.Stats.Failed != 1 || r.Stats.Edges != 3 {
		t.Errorf("Stats = %+v", r.Stats)
	}
	if len(r.Edges) != 3 {
		t.Errorf("Edges = %+v", r.Edges)
	}
	if r.FinishedAt.Before(r.StartedAt) || r.Duration() < 0 {
		t.Error("timestamps out of order")
	}

	doc := s.SitemapDocument()
	if strings.Count(doc, "<loc>") != 2 {
		t.Errorf("sitemap = %s", doc)
	}
}

func TestSpiderHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(anchors("/about", "/old", "/missing", "https://example.org/")))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(anchors("/", "/contact#form")))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(anchors()))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/contact", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	exec := fetcher.NewHTTPExecutor(
		fetcher.WithConcurrency(4),
		fetcher.WithRetryTimes(2),
		fetcher.WithTimeout(5*time.Second),
	)
	s := mustSpider(t, srv.URL+"/", exec, WithBuildGraph(true))

	visited, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := map[urlscope.CanonicalURL]bool{
		urlscope.CanonicalURL(srv.URL + "/"):        true,
		urlscope.CanonicalURL(srv.URL + "/about"):   true,
		urlscope.CanonicalURL(srv.URL + "/contact"): true,
	}
	if len(visited) != len(want) {
		t.Errorf("visited = %v", visited)
	}
	for _, u := range visited {
		if !want[u] {
			t.Errorf("unexpected visited url %s", u)
		}
	}
	if got := s.FailedURLs(); !slices.Equal(got, []urlscope.CanonicalURL{urlscope.CanonicalURL(srv.URL + "/missing")}) {
		t.Errorf("FailedURLs() = %v", got)
	}
	if r := s.Report(); r.Failures[0].Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", r.Failures[0].Attempts)
	}
}
