package crawler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nao1215/sitemapper/internal/urlscope"
)

// Target is a URL waiting to be fetched, with its hop distance from the
// seed. The seed has depth 0.
type Target struct {
	URL   urlscope.CanonicalURL
	Depth int
}

// VisitedChecker reports whether a URL has already been visited. The
// graph accumulator implements it.
type VisitedChecker interface {
	Visited(u urlscope.CanonicalURL) bool
}

// FrontierStats counts admission decisions.
type FrontierStats struct {
	// Admitted is the number of targets added to the frontier.
	Admitted int

	// Duplicates counts URLs rejected because they were already admitted,
	// visited, failed or resolved as a redirect source.
	Duplicates int

	// Excluded counts URLs rejected by an exclusion pattern.
	Excluded int

	// TooDeep counts URLs rejected by the path or step depth limits.
	TooDeep int
}

// Frontier is the crawl worklist together with the error set.
//
// A URL is in at most one of pending, failed and visited. A URL is
// admitted at most once per crawl, so once it has been handed out by
// TakeBatch it is never queued again.
type Frontier struct {
	visited VisitedChecker

	pending    []Target
	pendingSet map[urlscope.CanonicalURL]struct{}

	// seen holds every URL admitted so far, including targets already
	// handed out by TakeBatch whose outcome is not merged yet.
	seen map[urlscope.CanonicalURL]struct{}

	failed    []urlscope.CanonicalURL
	failedSet map[urlscope.CanonicalURL]struct{}

	// resolved holds redirect sources. They were fetched but are not
	// visited pages themselves.
	resolved map[urlscope.CanonicalURL]struct{}

	exclude      []*regexp.Regexp
	maxPathDepth int
	maxStepDepth int

	stats FrontierStats
}

// FrontierOption configures a Frontier.
type FrontierOption func(*Frontier)

// WithFrontierExcludePatterns rejects URLs matching any of patterns.
func WithFrontierExcludePatterns(patterns []*regexp.Regexp) FrontierOption {
	return func(f *Frontier) {
		f.exclude = patterns
	}
}

// WithFrontierMaxPathDepth rejects URLs whose path has more than n
// slashes. 0 means unlimited.
func WithFrontierMaxPathDepth(n int) FrontierOption {
	return func(f *Frontier) {
		f.maxPathDepth = max(n, 0)
	}
}

// WithFrontierMaxStepDepth rejects targets more than n hops away from the
// seed. 0 means unlimited.
func WithFrontierMaxStepDepth(n int) FrontierOption {
	return func(f *Frontier) {
		f.maxStepDepth = max(n, 0)
	}
}

// NewFrontier creates an empty Frontier that consults visited before
// admitting a URL.
func NewFrontier(visited VisitedChecker, opts ...FrontierOption) *Frontier {
	f := &Frontier{
		visited:    visited,
		pending:    make([]Target, 0),
		pendingSet: make(map[urlscope.CanonicalURL]struct{}),
		seen:       make(map[urlscope.CanonicalURL]struct{}),
		failed:     make([]urlscope.CanonicalURL, 0),
		failedSet:  make(map[urlscope.CanonicalURL]struct{}),
		resolved:   make(map[urlscope.CanonicalURL]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Admit queues u at the given depth. It returns false, leaving the
// frontier unchanged, when u is already known, excluded or too deep.
func (f *Frontier) Admit(u urlscope.CanonicalURL, depth int) bool {
	if f.known(u) {
		f.stats.Duplicates++
		return false
	}
	if f.matchesPattern(u) {
		f.stats.Excluded++
		return false
	}
	if f.pathTooDeep(u) || (f.maxStepDepth > 0 && depth > f.maxStepDepth) {
		f.stats.TooDeep++
		return false
	}

	f.pending = append(f.pending, Target{URL: u, Depth: depth})
	f.pendingSet[u] = struct{}{}
	f.seen[u] = struct{}{}
	f.stats.Admitted++
	return true
}

func (f *Frontier) known(u urlscope.CanonicalURL) bool {
	if _, ok := f.seen[u]; ok {
		return true
	}
	if _, ok := f.failedSet[u]; ok {
		return true
	}
	if _, ok := f.resolved[u]; ok {
		return true
	}
	return f.visited != nil && f.visited.Visited(u)
}

// Excluded reports whether u matches an exclusion pattern or exceeds the
// maximum path depth.
func (f *Frontier) Excluded(u urlscope.CanonicalURL) bool {
	return f.matchesPattern(u) || f.pathTooDeep(u)
}

func (f *Frontier) matchesPattern(u urlscope.CanonicalURL) bool {
	for _, re := range f.exclude {
		if re.MatchString(u.String()) {
			return true
		}
	}
	return false
}

func (f *Frontier) pathTooDeep(u urlscope.CanonicalURL) bool {
	return f.maxPathDepth > 0 && urlscope.PathDepth(u.String()) > f.maxPathDepth
}

// TakeBatch removes up to maxSize targets in insertion order. Targets that
// exceed the current step depth limit are discarded. maxSize <= 0 takes
// everything.
func (f *Frontier) TakeBatch(maxSize int) []Target {
	if maxSize <= 0 || maxSize > len(f.pending) {
		maxSize = len(f.pending)
	}

	batch := make([]Target, 0, maxSize)
	taken := 0
	for taken < len(f.pending) && len(batch) < maxSize {
		t := f.pending[taken]
		taken++
		delete(f.pendingSet, t.URL)
		if f.maxStepDepth > 0 && t.Depth > f.maxStepDepth {
			delete(f.seen, t.URL)
			continue
		}
		batch = append(batch, t)
	}

	// Copy the remainder so the backing array does not grow forever.
	f.pending = append(make([]Target, 0, len(f.pending)-taken), f.pending[taken:]...)
	return batch
}

// MarkFailed moves u to the error set. Adding the same URL twice keeps a
// single entry.
func (f *Frontier) MarkFailed(u urlscope.CanonicalURL) {
	if _, ok := f.failedSet[u]; ok {
		return
	}
	f.failedSet[u] = struct{}{}
	f.failed = append(f.failed, u)
}

// MarkResolved records u as the source of a redirect so that it is not
// fetched again.
func (f *Frontier) MarkResolved(u urlscope.CanonicalURL) {
	f.resolved[u] = struct{}{}
}

// Failed reports whether u is in the error set.
func (f *Frontier) Failed(u urlscope.CanonicalURL) bool {
	_, ok := f.failedSet[u]
	return ok
}

// FailedURLs returns the error set in the order failures were recorded.
func (f *Frontier) FailedURLs() []urlscope.CanonicalURL {
	out := make([]urlscope.CanonicalURL, len(f.failed))
	copy(out, f.failed)
	return out
}

// Pending reports whether u is waiting in the frontier.
func (f *Frontier) Pending(u urlscope.CanonicalURL) bool {
	_, ok := f.pendingSet[u]
	return ok
}

// Len returns the number of pending targets.
func (f *Frontier) Len() int {
	return len(f.pending)
}

// SetMaxStepDepth changes the step depth limit. Pending targets beyond the
// new limit are dropped by the next TakeBatch.
func (f *Frontier) SetMaxStepDepth(n int) {
	f.maxStepDepth = max(n, 0)
}

// Stats returns the admission counters.
func (f *Frontier) Stats() FrontierStats {
	return f.stats
}

// CompilePatterns compiles a whitespace separated list of regular
// expressions.
func CompilePatterns(list string) ([]*regexp.Regexp, error) {
	fields := strings.Fields(list)
	patterns := make([]*regexp.Regexp, 0, len(fields))
	for _, p := range fields {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}
