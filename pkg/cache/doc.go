// Package cache implements the optional in-memory response cache.
//
// Only GET and HEAD responses with status 200 and an explicit
// Cache-Control max-age are stored; no-store and private responses are
// never cached. Entries are bounded in count with LRU eviction and in
// per-entry body size. Keys combine the application, host, and request
// target so tenants can never observe each other's responses.
package cache
