// Package tor routes crawl traffic through SOCKS5 proxies.
//
// A Dialer wraps golang.org/x/net/proxy and implements
// proxy.ContextDialer, so it plugs straight into the fetcher. It is used
// both for --proxy and for --tor, where the proxy is either an external
// Tor daemon or an embedded one started through tornago (see Daemon).
//
// The package also validates onion hosts so that a crawl of an invalid
// or deprecated onion seed fails before any request is sent.
package tor
