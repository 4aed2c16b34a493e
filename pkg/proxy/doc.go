// Package proxy contains the request orchestration engine shared by
// every front (HTTP/1.1, HTTP/2, HTTP/3).
//
// For each inbound request the engine checks the authority against the
// negotiated server name,
// applies the https redirection gate, resolves the route through the
// current router snapshot, picks an upstream, rewrites the request
// (pkg/rewrite), dispatches it through the client pool (pkg/upstream),
// and streams the response back. Transport-level upstream failures are
// retried against the next healthy group member; WebSocket upgrades on
// HTTP/1.1 switch both sides to raw byte shuttling after the 101.
//
// The engine reads its router index once per request from an atomic
// pointer, so a configuration reload affects only requests that start
// after the swap.
package proxy
