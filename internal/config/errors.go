package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no seed URL is given.
	ErrNoTarget = errors.New("no target specified: provide a seed URL")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetryTimes is returned when fewer than one attempt is
	// configured.
	ErrInvalidRetryTimes = errors.New("invalid retry times: must be at least 1")

	// ErrInvalidMaxRequests is returned when the batch size is not positive.
	ErrInvalidMaxRequests = errors.New("invalid max requests: must be positive")

	// ErrInvalidMaxRedirects is returned for a negative redirect budget.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidDepth is returned for a negative path or step depth.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative (0 means unlimited)")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRateLimit is returned for a negative rate limit.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrGraphDisabled is returned when a graph export is requested
	// without --graph.
	ErrGraphDisabled = errors.New("graph export requested but graph building is disabled: add --graph")

	// ErrConflictingProxies is returned when --tor and --proxy are both set.
	ErrConflictingProxies = errors.New("conflicting proxies: --tor and --proxy cannot be used together")

	// ErrInvalidPattern is returned when an exclude pattern does not compile.
	ErrInvalidPattern = errors.New("invalid exclude pattern")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")
)
