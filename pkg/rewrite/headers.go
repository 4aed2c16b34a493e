package rewrite

import (
	"net/http"
	"strings"
)

// hopHeaders are the hop-by-hop headers that must not be forwarded by
// an intermediary (RFC 9110 section 7.6.1 plus the HTTP/1.1 legacy
// set).
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHop deletes hop-by-hop headers from h, including every
// header named in the Connection list.
func RemoveHopByHop(h http.Header) {
	for _, name := range connectionTokens(h) {
		h.Del(name)
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// connectionTokens returns the header names listed in Connection.
func connectionTokens(h http.Header) []string {
	var out []string
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

// IsWebSocketUpgrade reports whether the request asks for a WebSocket
// upgrade.
func IsWebSocketUpgrade(r *http.Request) bool {
	return headerListContains(r.Header, "Connection", "upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// headerListContains reports whether a comma-separated header contains
// the given token, case-insensitively.
func headerListContains(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), token) {
				return true
			}
		}
	}
	return false
}
