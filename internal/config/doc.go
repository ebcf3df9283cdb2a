// Package config defines the crawl configuration, its defaults and
// validation, and the optional .sitemapper YAML file with per-site
// settings.
package config
