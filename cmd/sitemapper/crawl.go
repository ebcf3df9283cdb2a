package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/crawler"
	"github.com/nao1215/sitemapper/internal/database"
	"github.com/nao1215/sitemapper/internal/fetcher"
	"github.com/nao1215/sitemapper/internal/log"
	"github.com/nao1215/sitemapper/internal/metrics"
	"github.com/nao1215/sitemapper/internal/tor"
	"github.com/nao1215/sitemapper/internal/urlscope"
	"github.com/spf13/cobra"
	"golang.org/x/net/proxy"
)

// errRecentRun is returned when --skip-recent finds a fresh run.
var errRecentRun = errors.New("seed was crawled recently")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <seed-url>",
		Short: "Crawl a website and write its sitemap",
		Long: `Crawl discovers every page reachable from the seed URL inside the seed's
domain and writes an XML sitemap.

Pages are fetched in concurrent batches of --max-requests URLs. Links are
extracted from every response, canonicalized (fragments removed) and
queued when they are internal, not excluded and within the depth limits.
Redirects are followed and re-checked against the domain.

Examples:
  # Write sitemap.xml for a site
  sitemapper crawl https://example.com

  # Print the sitemap instead
  sitemapper crawl -o - example.com

  # Skip PDFs and the blog, stay within 3 link steps
  sitemapper crawl -e '\.pdf$' -e '/blog/' --max-steps-depth 3 example.com

  # Record the link graph and export it
  sitemapper crawl --graph --graph-json graph.json --graph-gexf graph.gexf example.com

  # Crawl every subdomain of example.com
  sitemapper crawl --domain example.com https://www.example.com

  # Crawl an onion service through Tor
  sitemapper crawl --tor http://<address>.onion`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Scope flags
	cmd.Flags().StringArrayP("exclude", "e", nil,
		"Whitespace separated regular expressions for URLs to skip (repeatable)")
	cmd.Flags().StringP("domain", "d", "",
		"Crawl every host containing this domain instead of the seed host only")
	cmd.Flags().Int("max-path-depth", 0,
		"Skip URLs with more path separators than this (0 = unlimited)")
	cmd.Flags().Int("max-steps-depth", 0,
		"Skip pages more link steps away from the seed than this (0 = unlimited)")
	cmd.Flags().Bool("strict-canonical", false,
		"Force http, a www. prefix and no trailing slash when canonicalizing URLs")

	// Request flags
	cmd.Flags().StringArrayP("header", "H", nil,
		`Request header as "Name: value" (repeatable, replaces the default headers)`)
	cmd.Flags().Bool("no-default-headers", false,
		"Send no custom headers at all")
	cmd.Flags().String("cookie", "",
		"Cookie header sent with every request")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int("retry", config.DefaultRetryTimes,
		"Number of attempts per URL")
	cmd.Flags().IntP("max-requests", "n", config.DefaultMaxRequests,
		"Number of URLs fetched concurrently per batch")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Maximum redirects followed per request")
	cmd.Flags().Bool("no-verify-tls", false,
		"Do not verify TLS certificates")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of body bytes read per page")
	cmd.Flags().Float64("rate-limit", 0,
		"Maximum requests per second (0 = unlimited)")

	// Output flags
	cmd.Flags().StringP("output", "o", "sitemap.xml",
		`Sitemap output path ("-" for stdout, "" to skip)`)
	cmd.Flags().BoolP("graph", "g", false,
		"Record the link graph between pages")
	cmd.Flags().String("graph-json", "",
		"Write the link graph as node-link JSON (requires --graph)")
	cmd.Flags().String("graph-gexf", "",
		"Write the link graph as GEXF (requires --graph)")
	cmd.Flags().String("edges-csv", "",
		"Write the link graph as a CSV edge list (requires --graph)")
	cmd.Flags().String("failed-csv", "",
		"Write the URLs that could not be fetched as CSV")
	cmd.Flags().StringP("report", "r", "",
		"Write the crawl summary in the selected format to this file")
	cmd.Flags().BoolP("json", "j", false,
		"Write the crawl summary as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Write the crawl summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().BoolP("progress", "p", false,
		"Show a progress bar")

	// History flags
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the crawl history database")
	cmd.Flags().Bool("no-history", false,
		"Do not store this crawl in the history database")
	cmd.Flags().Duration("skip-recent", 0,
		"Skip the crawl if the seed was crawled within this duration")

	// Network flags
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false,
		"Route requests through Tor, starting an embedded Tor daemon")
	cmd.Flags().String("external-tor", "",
		"Route requests through a running Tor SOCKS5 proxy (e.g. "+config.DefaultTorProxyAddress+")")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Observability flags
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the crawl (e.g. :9090)")
	cmd.Flags().String("log-file", "",
		"Also write JSON debug logs to this file (rotated)")
	cmd.Flags().String("log-format", "text",
		"Log format on stderr: text or json")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemapper in current or home directory)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := log.NewLogger(log.Options{
		Writer:  cmd.ErrOrStderr(),
		Verbose: cfg.Verbose,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing with partial results")
			cancel()
		case <-ctx.Done():
		}
	}()

	skipRecent, err := cmd.Flags().GetDuration("skip-recent")
	if err != nil {
		return err
	}

	err = runCrawl(ctx, cfg, crawlIO{
		out:        cmd.OutOrStdout(),
		err:        cmd.ErrOrStderr(),
		skipRecent: skipRecent,
	}, logger.Logger)
	if errors.Is(err, errRecentRun) {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return nil
	}
	return err
}

func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the command line and the config file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var err error

	if len(args) > 0 {
		cfg.Seed = args[0]
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.ExcludePatterns, err = flags.GetStringArray("exclude"); err != nil {
		return nil, err
	}
	if cfg.Domain, err = flags.GetString("domain"); err != nil {
		return nil, err
	}
	if cfg.MaxPathDepth, err = flags.GetInt("max-path-depth"); err != nil {
		return nil, err
	}
	if cfg.MaxStepDepth, err = flags.GetInt("max-steps-depth"); err != nil {
		return nil, err
	}
	if cfg.StrictCanonical, err = flags.GetBool("strict-canonical"); err != nil {
		return nil, err
	}

	headerFlags, err := flags.GetStringArray("header")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = parseHeaders(headerFlags); err != nil {
		return nil, err
	}
	noDefaultHeaders, err := flags.GetBool("no-default-headers")
	if err != nil {
		return nil, err
	}
	if noDefaultHeaders && cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.RetryTimes, err = flags.GetInt("retry"); err != nil {
		return nil, err
	}
	if cfg.MaxRequests, err = flags.GetInt("max-requests"); err != nil {
		return nil, err
	}
	if cfg.MaxRedirects, err = flags.GetInt("max-redirects"); err != nil {
		return nil, err
	}
	noVerify, err := flags.GetBool("no-verify-tls")
	if err != nil {
		return nil, err
	}
	cfg.VerifyTLS = !noVerify
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
		return nil, err
	}

	if cfg.SitemapFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.BuildGraph, err = flags.GetBool("graph"); err != nil {
		return nil, err
	}
	if cfg.GraphJSONFile, err = flags.GetString("graph-json"); err != nil {
		return nil, err
	}
	if cfg.GraphGEXFFile, err = flags.GetString("graph-gexf"); err != nil {
		return nil, err
	}
	if cfg.EdgesCSVFile, err = flags.GetString("edges-csv"); err != nil {
		return nil, err
	}
	if cfg.FailedCSVFile, err = flags.GetString("failed-csv"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.Progress, err = flags.GetBool("progress"); err != nil {
		return nil, err
	}

	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory

	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	externalTor, err := flags.GetString("external-tor")
	if err != nil {
		return nil, err
	}
	if externalTor != "" {
		cfg.UseTor = true
		cfg.UseExternalTor = true
		cfg.TorProxyAddress = externalTor
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}

	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.LogFile, err = flags.GetString("log-file"); err != nil {
		return nil, err
	}
	if cfg.LogFormat, err = flags.GetString("log-format"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	// An explicitly named config file must exist; otherwise a missing
	// file just means no site settings.
	if configPath := config.FindConfigFile(cfg.ConfigFilePath); configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	cfg.ApplySiteConfig()

	return cfg, nil
}

// parseHeaders turns "Name: value" flags into a map. No flags yields nil,
// which keeps the default header set.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", v)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// crawlIO carries the destinations and run options that are not part of
// the crawl configuration itself.
type crawlIO struct {
	out        io.Writer
	err        io.Writer
	skipRecent time.Duration
}

// runCrawl executes one crawl and writes all requested outputs.
func runCrawl(ctx context.Context, cfg *config.Config, cio crawlIO, logger *slog.Logger) error {
	if err := checkOnionSeed(cfg); err != nil {
		return err
	}

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	dialer, cleanup, err := setupProxy(ctx, cfg, cio.err, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector()
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := collector.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "address", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	var bar *progressBar
	var extra []crawler.SpiderOption
	if cfg.Progress {
		bar = newProgressBar(cio.err)
		extra = append(extra, crawler.WithProgress(bar.Update))
	}

	spider, err := newSpider(cfg, dialer, collector, logger, extra...)
	if err != nil {
		return err
	}

	if db != nil && cio.skipRecent > 0 {
		recent, err := db.HasRecentRun(ctx, spider.Seed().String(), cio.skipRecent)
		if err != nil {
			return fmt.Errorf("failed to check history: %w", err)
		}
		if recent {
			return fmt.Errorf("%w: %s within %s (see 'sitemapper history list')", errRecentRun, spider.Seed(), cio.skipRecent)
		}
	}

	if _, err := spider.Start(ctx); err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	bar.Finish()

	report := spider.Report()
	if err := writeOutputs(cfg, spider, cio.out); err != nil {
		return err
	}

	if db != nil {
		if err := db.SaveRun(context.WithoutCancel(ctx), report); err != nil {
			logger.Error("failed to save crawl to history", "error", err)
		} else {
			logger.Info("crawl saved to history", "run", report.RunID)
		}
	}

	summaryOut := cio.out
	if cfg.SitemapFile == "-" {
		summaryOut = cio.err
	}
	return writeSummary(cfg, report, summaryOut)
}

// newSpider builds the executor and spider described by cfg.
func newSpider(cfg *config.Config, dialer proxy.ContextDialer, collector *metrics.Collector, logger *slog.Logger, extra ...crawler.SpiderOption) (*crawler.Spider, error) {
	execOpts := []fetcher.Option{
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithRetryTimes(cfg.RetryTimes),
		fetcher.WithMaxRedirects(cfg.MaxRedirects),
		fetcher.WithTLSVerify(cfg.VerifyTLS),
		fetcher.WithConcurrency(cfg.MaxRequests),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithRateLimit(cfg.RateLimit, cfg.MaxRequests),
		fetcher.WithLogger(logger),
		fetcher.WithMetrics(collector),
	}
	if h := cfg.RequestHeaders(); h != nil {
		execOpts = append(execOpts, fetcher.WithHeaders(h))
	}
	if dialer != nil {
		execOpts = append(execOpts, fetcher.WithProxyDialer(dialer))
	}
	exec := fetcher.NewHTTPExecutor(execOpts...)

	patterns, err := crawler.CompilePatterns(cfg.ExcludeList())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidPattern, err)
	}

	canon := urlscope.NewCanonicalizer()
	if cfg.StrictCanonical {
		canon = urlscope.NewStrictCanonicalizer()
	}

	opts := []crawler.SpiderOption{
		crawler.WithDomain(cfg.Domain),
		crawler.WithExcludePatterns(patterns),
		crawler.WithMaxRequests(cfg.MaxRequests),
		crawler.WithMaxPathDepth(cfg.MaxPathDepth),
		crawler.WithMaxStepDepth(cfg.MaxStepDepth),
		crawler.WithBuildGraph(cfg.BuildGraph),
		crawler.WithCanonicalizer(canon),
		crawler.WithLogger(logger),
		crawler.WithSpiderMetrics(collector),
	}
	return crawler.NewSpider(cfg.Seed, exec, append(opts, extra...)...)
}

// checkOnionSeed rejects malformed onion seeds and onion seeds without a
// proxy, which could never be reached.
func checkOnionSeed(cfg *config.Config) error {
	host := cfg.SeedHost()
	if !tor.IsOnionHost(host) {
		return nil
	}
	if err := tor.ValidateOnionHost(host); err != nil {
		return fmt.Errorf("invalid seed %q: %w", cfg.Seed, err)
	}
	if !cfg.UseTor && cfg.ProxyAddress == "" {
		return tor.ErrOnionWithoutProxy
	}
	return nil
}

// setupProxy returns the dialer requested by cfg, or nil for direct
// connections. cleanup must always be called.
func setupProxy(ctx context.Context, cfg *config.Config, status io.Writer, logger *slog.Logger) (proxy.ContextDialer, func(), error) {
	noop := func() {}

	switch {
	case cfg.ProxyAddress != "":
		d, err := checkedDialer(ctx, cfg.ProxyAddress, cfg.SeedHost())
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using SOCKS5 proxy", "address", cfg.ProxyAddress)
		return d, noop, nil

	case cfg.UseTor && cfg.UseExternalTor:
		d, err := checkedDialer(ctx, cfg.TorProxyAddress, "")
		if err != nil {
			return nil, noop, fmt.Errorf("%w (make sure Tor is running at %s)", err, cfg.TorProxyAddress)
		}
		logger.Info("using external Tor proxy", "address", cfg.TorProxyAddress)
		return d, noop, nil

	case cfg.UseTor:
		fmt.Fprintln(status, "Starting embedded Tor daemon. This may take 1-3 minutes while Tor bootstraps.")
		daemon := tor.NewDaemon(
			tor.WithStartupTimeout(cfg.TorStartupTimeout),
			tor.WithDaemonLogger(logger),
		)
		if err := daemon.Start(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			if err := daemon.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		d, err := daemon.Dialer()
		if err == nil {
			err = d.CheckConnection(ctx, "").Error()
		}
		if err != nil {
			stop()
			return nil, noop, fmt.Errorf("embedded Tor proxy check failed: %w", err)
		}
		return d, stop, nil
	}
	return nil, noop, nil
}

func checkedDialer(ctx context.Context, address, probeHost string) (*tor.Dialer, error) {
	d, err := tor.NewDialer(address)
	if err != nil {
		return nil, err
	}
	if err := d.CheckConnection(ctx, probeHost).Error(); err != nil {
		return nil, fmt.Errorf("proxy check failed for %s: %w", address, err)
	}
	return d, nil
}
