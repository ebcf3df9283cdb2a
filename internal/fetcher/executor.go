package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/sitemapper/internal/metrics"
	"github.com/nao1215/sitemapper/internal/urlscope"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// Defaults used by NewHTTPExecutor.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultRetryTimes   = 1
	DefaultMaxRedirects = 10
	DefaultConcurrency  = 100
	DefaultMaxBodySize  = 10 * 1024 * 1024
)

// Outcome is the result of fetching one URL.
type Outcome struct {
	// RequestedURL is the URL that was taken from the frontier.
	RequestedURL urlscope.CanonicalURL

	// FinalURL is the URL of the last response after redirects, as
	// reported by the HTTP client. It is empty when Failed is true.
	FinalURL string

	// Body is the decoded response body, capped at the executor's
	// maximum body size. Nil when Failed is true.
	Body []byte

	// ContentType is the Content-Type header of the final response.
	ContentType string

	// StatusCode is the status of the last response received, 0 if none.
	StatusCode int

	// Attempts is the number of requests issued, retries included.
	Attempts int

	// Failed is true when every attempt failed.
	Failed bool

	// Err is the classified error of the last attempt when Failed is true.
	Err error
}

// Redirected reports whether the final URL differs from the requested one.
func (o Outcome) Redirected() bool {
	return !o.Failed && o.FinalURL != "" && o.FinalURL != o.RequestedURL.String()
}

// Executor fetches batches of URLs.
type Executor interface {
	// FetchBatch fetches every URL and returns once all fetches have
	// completed. It never returns fewer outcomes than urls.
	FetchBatch(ctx context.Context, urls []urlscope.CanonicalURL) []Outcome
}

// HTTPExecutor is the net/http based Executor.
type HTTPExecutor struct {
	// client is shared by all fetches. It is built once in NewHTTPExecutor
	// and never mutated afterwards.
	client *http.Client

	// headers are sent with every request. Nil means none.
	headers http.Header

	// headersSet records whether WithHeaders was used.
	headersSet bool

	retryTimes   int
	retryBackoff time.Duration
	maxRedirects int
	tlsVerify    bool
	timeout      time.Duration
	concurrency  int
	maxBodySize  int64

	dialer  proxy.ContextDialer
	limiter *rate.Limiter
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Option configures an HTTPExecutor.
type Option func(*HTTPExecutor)

// WithHeaders replaces the default header set. The header is copied, so
// later changes by the caller have no effect. An empty header disables
// all custom headers.
func WithHeaders(h http.Header) Option {
	return func(e *HTTPExecutor) {
		e.headers = h.Clone()
		e.headersSet = true
	}
}

// WithRetryTimes sets the total number of attempts per URL, including the
// first one. Values below 1 are raised to 1.
func WithRetryTimes(n int) Option {
	return func(e *HTTPExecutor) {
		e.retryTimes = max(n, 1)
	}
}

// WithRetryBackoff sets the pause before each retry. Zero retries
// immediately.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *HTTPExecutor) {
		if d >= 0 {
			e.retryBackoff = d
		}
	}
}

// WithMaxRedirects caps the number of redirect hops per attempt.
// Negative values are ignored.
func WithMaxRedirects(n int) Option {
	return func(e *HTTPExecutor) {
		if n >= 0 {
			e.maxRedirects = n
		}
	}
}

// WithTLSVerify toggles certificate and host name verification.
// Verification is on by default.
func WithTLSVerify(verify bool) Option {
	return func(e *HTTPExecutor) {
		e.tlsVerify = verify
	}
}

// WithTimeout sets the per-request timeout. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *HTTPExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithConcurrency sets the number of fetches in flight within a batch.
// 1 gives a sequential executor.
func WithConcurrency(n int) Option {
	return func(e *HTTPExecutor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxBodySize caps the number of decoded body bytes kept per page.
func WithMaxBodySize(n int64) Option {
	return func(e *HTTPExecutor) {
		if n > 0 {
			e.maxBodySize = n
		}
	}
}

// WithProxyDialer routes all connections through d, typically a SOCKS5
// dialer for Tor.
func WithProxyDialer(d proxy.ContextDialer) Option {
	return func(e *HTTPExecutor) {
		e.dialer = d
	}
}

// WithRateLimit limits requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *HTTPExecutor) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *HTTPExecutor) {
		e.logger = logger
	}
}

// WithMetrics records fetch metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *HTTPExecutor) {
		e.metrics = c
	}
}

// NewHTTPExecutor creates an HTTPExecutor. The HTTP client, TLS settings
// and header set are fixed at construction time.
func NewHTTPExecutor(opts ...Option) *HTTPExecutor {
	e := &HTTPExecutor{
		retryTimes:   DefaultRetryTimes,
		maxRedirects: DefaultMaxRedirects,
		tlsVerify:    true,
		timeout:      DefaultTimeout,
		concurrency:  DefaultConcurrency,
		maxBodySize:  DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.headersSet {
		e.headers = DefaultHeaders("")
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.client = e.newClient()
	return e
}

func (e *HTTPExecutor) newClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   e.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !e.tlsVerify, //nolint:gosec // explicit opt-out via --no-verify-tls
			MinVersion:         tls.VersionTLS12,
		},
		TLSHandshakeTimeout:   e.timeout,
		MaxIdleConns:          max(e.concurrency, 10),
		MaxIdleConnsPerHost:   max(e.concurrency, 2),
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if e.dialer != nil {
		transport.Proxy = nil
		transport.DialContext = e.dialer.DialContext
	}

	maxRedirects := e.maxRedirects
	return &http.Client{
		Transport: transport,
		Timeout:   e.timeout,
		// via holds every request already sent, so len(via) is the number
		// of the hop about to be followed. Self-redirects count as well.
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// Concurrency returns the configured number of in-flight fetches.
func (e *HTTPExecutor) Concurrency() int {
	return e.concurrency
}

// FetchOne fetches target with retries. It never returns a Go error; a
// failure is reported through Outcome.Failed and Outcome.Err.
func (e *HTTPExecutor) FetchOne(ctx context.Context, target urlscope.CanonicalURL) Outcome {
	start := time.Now()
	out := Outcome{RequestedURL: target}

	var lastErr error
	for attempt := 1; attempt <= e.retryTimes; attempt++ {
		if attempt > 1 {
			e.metrics.ObserveRetry()
			e.logger.Debug("retrying fetch",
				"url", target,
				"attempt", attempt,
				"error", lastErr,
			)
			if err := sleepContext(ctx, e.retryBackoff); err != nil {
				lastErr = err
				break
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		out.Attempts = attempt
		res, err := e.do(ctx, target)
		out.StatusCode = res.statusCode
		if err == nil {
			out.FinalURL = res.finalURL
			out.Body = res.body
			out.ContentType = res.contentType
			e.metrics.ObserveFetch(false, time.Since(start))
			return out
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	out.Failed = true
	out.Err = lastErr
	e.metrics.ObserveFetch(true, time.Since(start))
	return out
}

type response struct {
	finalURL    string
	body        []byte
	contentType string
	statusCode  int
}

// do issues a single GET and classifies its failure.
func (e *HTTPExecutor) do(ctx context.Context, target urlscope.CanonicalURL) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return response{}, &TransportError{URL: target.String(), Err: err}
	}
	for name, values := range e.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		// Suppress Go's own User-Agent when the header set is empty.
		req.Header.Set("User-Agent", "")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.metrics.ObserveAttempt(0)
		if errors.Is(err, ErrTooManyRedirects) {
			return response{}, fmt.Errorf("fetch %s: %w", target, ErrTooManyRedirects)
		}
		return response{}, &TransportError{URL: target.String(), Err: err}
	}
	e.metrics.ObserveAttempt(resp.StatusCode)

	res := response{statusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return res, &HTTPStatusError{URL: target.String(), StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp, e.maxBodySize)
	if err != nil {
		return res, &TransportError{URL: target.String(), Err: err}
	}

	res.body = body
	res.contentType = resp.Header.Get("Content-Type")
	// Keep the URL as requested unless a redirect actually moved it;
	// url.URL.String re-encodes paths and would fake a redirect.
	res.finalURL = target.String()
	if resp.Request != nil && resp.Request.URL != nil {
		if final := resp.Request.URL.String(); final != req.URL.String() {
			res.finalURL = final
		}
	}
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
