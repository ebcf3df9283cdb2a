package crawler

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when the spider has already
	// been started. A Spider runs exactly once.
	ErrAlreadyStarted = errors.New("spider already started")

	// ErrInvalidSeed is returned by NewSpider when the seed URL cannot be
	// canonicalized.
	ErrInvalidSeed = errors.New("invalid seed url")

	// ErrNoExecutor is returned by NewSpider when no fetch executor is
	// given.
	ErrNoExecutor = errors.New("fetch executor is required")
)
