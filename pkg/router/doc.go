// Package router implements the precomputed routing table mapping
// (server name, request path) to a route and its upstream group.
//
// An Index is built once from configuration and never mutated; reload
// publishes a replacement through the proxy engine's atomic pointer
// (pkg/proxy), which pkg/server swaps on reload.
// Host lookup is exact-first, then single-label wildcard. Within an
// application, routes with an explicit path are matched by longest
// prefix aligned on "/" boundaries; the default route (the one without
// a path) catches everything else.
package router
