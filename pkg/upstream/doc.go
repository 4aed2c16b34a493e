// Package upstream maintains pooled HTTP clients towards backend
// servers.
//
// Clients are keyed by (scheme, authority, TLS server name, ALPN
// preference) so connections are never reused across tenants whose
// backend handshakes differ, even when they share an address. Each key
// owns one http.Client with its own connection pool. Plaintext HTTP/2
// (h2c) is only used when a route forces it.
package upstream
