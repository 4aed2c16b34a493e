// Package server assembles and runs the listening fronts.
//
// A Server owns the plaintext HTTP/1.1 front, the TLS front with
// ALPN-negotiated HTTP/1.1 and HTTP/2, the optional HTTP/3 (QUIC)
// front, and the optional Prometheus metrics listener. All fronts feed
// the same middleware chain around the proxy engine.
//
// Reload, triggered by SIGHUP or a configuration file change, loads
// and validates a fresh configuration, rebuilds the certificate store
// snapshot and the router index, and swaps both atomically. A failed
// reload is logged and the previous snapshots keep serving. Shutdown
// stops accepting, drains connections until the graceful timeout, then
// force-closes.
package server
