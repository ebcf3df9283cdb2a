// Package metrics exposes Prometheus collectors for a crawl.
//
// A nil *Collector is valid and records nothing, so packages can accept an
// optional collector without nil checks at every call site.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitemapper"

// Collector groups the crawl metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	retries       prometheus.Counter
	pages         *prometheus.CounterVec
	batches       prometheus.Counter
	frontier      prometheus.Gauge
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Total number of HTTP fetch attempts, labeled by status code.",
			},
			[]string{"status_code"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of a complete fetch including retries.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Total number of retried fetch attempts.",
			},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Pages processed by the crawler, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		batches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of fetch batches dispatched.",
			},
		),
		frontier: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "frontier_size",
				Help:      "Number of targets waiting in the frontier.",
			},
		),
	}

	c.registry.MustRegister(
		c.fetches,
		c.fetchDuration,
		c.retries,
		c.pages,
		c.batches,
		c.frontier,
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveAttempt counts one HTTP attempt. statusCode 0 means the request
// failed before a response arrived.
func (c *Collector) ObserveAttempt(statusCode int) {
	if c == nil {
		return
	}
	label := "transport_error"
	if statusCode > 0 {
		label = strconv.Itoa(statusCode)
	}
	c.fetches.WithLabelValues(label).Inc()
}

// ObserveRetry counts one retry.
func (c *Collector) ObserveRetry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// ObserveFetch records the total duration of a fetch.
func (c *Collector) ObserveFetch(failed bool, d time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	c.fetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// Page outcomes.
const (
	OutcomeVisited  = "visited"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped"
	OutcomeExcluded = "excluded"
)

// ObservePage counts a processed page with the given outcome.
func (c *Collector) ObservePage(outcome string) {
	if c == nil {
		return
	}
	c.pages.WithLabelValues(outcome).Inc()
}

// ObserveBatch counts a dispatched batch and updates the frontier gauge.
func (c *Collector) ObserveBatch(pending int) {
	if c == nil {
		return
	}
	c.batches.Inc()
	c.frontier.Set(float64(pending))
}

// Handler returns an http.Handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("exposing prometheus metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
