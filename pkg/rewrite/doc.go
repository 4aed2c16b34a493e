// Package rewrite produces the forwarded request from an inbound one.
//
// The rewriter applies the route's path substitution, redirects the
// request authority at the chosen upstream, strips hop-by-hop headers
// (including those named by the inbound Connection header), and stamps
// the X-Forwarded-* family. WebSocket upgrade requests get their
// Connection/Upgrade pair re-inserted after the hop-by-hop sweep so the
// upstream still sees the upgrade.
package rewrite
