// Package fetcher performs the HTTP side of a crawl.
//
// HTTPExecutor issues GET requests with a bounded number of attempts, a cap
// on redirect hops and optional TLS verification bypass. FetchBatch runs a
// batch of fetches with a concurrency limit and returns only after every
// fetch has finished, which gives the crawl orchestrator a barrier between
// batches.
//
// Failures never escape as Go errors from FetchBatch. Each Outcome carries
// a Failed flag and the classified error of its last attempt:
//
//   - *TransportError for DNS, connect, TLS and read failures
//   - *HTTPStatusError for responses outside the 2xx range
//   - ErrTooManyRedirects when the redirect cap is exceeded
//
// All three are retryable.
package fetcher
