// Package database stores crawl history in SQLite.
//
// Every crawl run is saved with its visited pages (status, title and a
// SHA3-256 body fingerprint), the link graph edges and the failed URLs.
// Runs can be listed per seed and two runs can be diffed to see which
// pages appeared, disappeared or changed.
//
// The store uses modernc.org/sqlite, a CGO-free driver, so the binary
// cross-compiles without a C toolchain.
package database
