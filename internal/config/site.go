package config

import (
	"maps"
	"strings"
)

// SiteConfig holds settings for one host.
type SiteConfig struct {
	// Cookie is sent as the Cookie header, e.g. "session=abc".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth is the maximum step depth. 0 leaves the command line value.
	Depth int `yaml:"depth,omitempty"`

	// PathDepth is the maximum path depth. 0 leaves the command line value.
	PathDepth int `yaml:"pathDepth,omitempty"`

	// Domain widens the crawl scope to hosts containing it.
	Domain string `yaml:"domain,omitempty"`

	// Exclude are regular expressions of URLs to skip.
	Exclude []string `yaml:"exclude,omitempty"`
}

// File is the structure of the .sitemapper configuration file.
type File struct {
	// Sites maps host names (without scheme) to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// SiteConfig returns the settings for host merged over the defaults. A
// host without an entry also tries its name without a leading "www.".
func (cf *File) SiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)
	result.Exclude = append([]string(nil), cf.Defaults.Exclude...)

	host = strings.ToLower(host)
	site, ok := cf.Sites[host]
	if !ok {
		site, ok = cf.Sites[strings.TrimPrefix(host, "www.")]
	}
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.Depth != 0 {
		result.Depth = site.Depth
	}
	if site.PathDepth != 0 {
		result.PathDepth = site.PathDepth
	}
	if site.Domain != "" {
		result.Domain = site.Domain
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	result.Exclude = append(result.Exclude, site.Exclude...)
	return result
}
