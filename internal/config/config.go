package config

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/sitemapper/internal/fetcher"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemapper"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = fetcher.DefaultTimeout

	// DefaultRetryTimes is the number of attempts per URL.
	DefaultRetryTimes = fetcher.DefaultRetryTimes

	// DefaultMaxRequests is the batch size: how many URLs are fetched
	// concurrently before their links are merged.
	DefaultMaxRequests = 100

	// DefaultMaxRedirects is the redirect budget per fetch.
	DefaultMaxRedirects = fetcher.DefaultMaxRedirects

	// DefaultMaxBodySize limits how much of each body is read.
	DefaultMaxBodySize = fetcher.DefaultMaxBodySize

	// DefaultTorProxyAddress is the standard Tor SOCKS5 port, used with
	// --tor and --external-tor.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds every option of a crawl. It is populated from CLI flags
// and the config file and passed down explicitly.
type Config struct {
	// Seed is the URL the crawl starts from.
	Seed string

	// ExcludePatterns are whitespace separated lists of regular
	// expressions; matching URLs are skipped.
	ExcludePatterns []string

	// Domain restricts the crawl to hosts containing it. Empty means the
	// seed host only.
	Domain string

	// Headers are sent with every request. Nil selects the browser-like
	// default set; an empty non-nil map sends no extra headers.
	Headers map[string]string

	// Cookie is added as a Cookie header when set.
	Cookie string

	Timeout      time.Duration
	RetryTimes   int
	MaxRequests  int
	VerifyTLS    bool
	MaxRedirects int

	// MaxPathDepth and MaxStepDepth bound the crawl. 0 means unlimited.
	MaxPathDepth int
	MaxStepDepth int

	// BuildGraph enables link graph recording.
	BuildGraph bool

	// StrictCanonical forces http, a www. prefix and trims trailing
	// slashes when canonicalizing URLs.
	StrictCanonical bool

	MaxBodySize int64

	// RateLimit is the maximum number of requests per second. 0 disables
	// rate limiting.
	RateLimit float64

	// Output paths. Empty means "don't write"; "-" means stdout.
	SitemapFile   string
	GraphJSONFile string
	GraphGEXFFile string
	EdgesCSVFile  string
	FailedCSVFile string
	ReportFile    string

	// JSONReport and MarkdownReport select the summary format.
	JSONReport     bool
	MarkdownReport bool

	// DBDir is where the history database lives. SaveToDB is false when
	// history is disabled.
	DBDir    string
	SaveToDB bool

	// Progress shows a progress bar on stderr.
	Progress bool

	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string

	// ProxyAddress routes all requests through a SOCKS5 proxy.
	ProxyAddress string

	// UseTor routes requests through Tor. UseExternalTor uses the daemon
	// at TorProxyAddress instead of starting an embedded one.
	UseTor            bool
	UseExternalTor    bool
	TorProxyAddress   string
	TorStartupTimeout time.Duration

	Verbose   bool
	LogFile   string
	LogFormat string

	// ConfigFilePath is the explicit config file, if any.
	ConfigFilePath string

	// SiteConfigs holds the loaded config file, if any.
	SiteConfigs *File
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		RetryTimes:        DefaultRetryTimes,
		MaxRequests:       DefaultMaxRequests,
		VerifyTLS:         true,
		MaxRedirects:      DefaultMaxRedirects,
		MaxBodySize:       DefaultMaxBodySize,
		SitemapFile:       "sitemap.xml",
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
		TorProxyAddress:   DefaultTorProxyAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		LogFormat:         "text",
	}
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/sitemapper.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/sitemapper.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the state directory used for log files, e.g.
// ~/.local/state/sitemapper.
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Seed) == "" {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetryTimes < 1 {
		return ErrInvalidRetryTimes
	}
	if c.MaxRequests <= 0 {
		return ErrInvalidMaxRequests
	}
	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}
	if c.MaxPathDepth < 0 || c.MaxStepDepth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if (c.GraphJSONFile != "" || c.GraphGEXFFile != "" || c.EdgesCSVFile != "") && !c.BuildGraph {
		return ErrGraphDisabled
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxies
	}
	for _, p := range strings.Fields(c.ExcludeList()) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidPattern, p, err)
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
	return nil
}

// ExcludeList returns every exclusion pattern as one whitespace separated
// list. Each flag or config entry may itself hold several patterns.
func (c *Config) ExcludeList() string {
	return strings.Join(c.ExcludePatterns, " ")
}

// SeedHost returns the host of the seed URL, adding http:// when the seed
// has no scheme. It returns "" when the seed cannot be parsed.
func (c *Config) SeedHost() string {
	seed := strings.TrimSpace(c.Seed)
	if seed != "" && !strings.Contains(seed, "://") {
		seed = "http://" + seed
	}
	u, err := url.Parse(seed)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ApplySiteConfig merges the config file entry of the seed host into c.
// Values already set on the command line win over the file: the file
// only fills fields still at their zero value, exclusion patterns are
// appended and headers are added where no header of that name is set.
func (c *Config) ApplySiteConfig() {
	if c.SiteConfigs == nil {
		return
	}
	site := c.SiteConfigs.SiteConfig(c.SeedHost())

	if c.Cookie == "" {
		c.Cookie = site.Cookie
	}
	if c.Domain == "" {
		c.Domain = site.Domain
	}
	if c.MaxStepDepth == 0 {
		c.MaxStepDepth = site.Depth
	}
	if c.MaxPathDepth == 0 {
		c.MaxPathDepth = site.PathDepth
	}
	c.ExcludePatterns = append(c.ExcludePatterns, site.Exclude...)

	if len(site.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(site.Headers))
		}
		for k, v := range site.Headers {
			if _, ok := c.Headers[k]; !ok {
				c.Headers[k] = v
			}
		}
	}
}

// RequestHeaders returns the header set handed to the fetcher. Nil means
// "use the fetcher defaults". A cookie without explicit headers is added
// on top of the default set.
func (c *Config) RequestHeaders() http.Header {
	if c.Headers == nil && c.Cookie == "" {
		return nil
	}
	h := fetcher.HeadersFromMap(c.Headers)
	if h == nil {
		h = fetcher.DefaultHeaders("")
	}
	if c.Cookie != "" {
		h.Set("Cookie", c.Cookie)
	}
	return h
}
