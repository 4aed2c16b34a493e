package rewrite

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"gatehouse-hq/gatehouse/pkg/lb"
	"gatehouse-hq/gatehouse/pkg/router"
)

// Forwarded builds the request dispatched to the chosen upstream from
// the inbound request. The inbound request is not modified.
func Forwarded(ctx context.Context, inbound *http.Request, route *router.Route, up *lb.Upstream) *http.Request {
	out := inbound.Clone(ctx)

	// Authority and scheme come from the upstream location.
	out.URL.Scheme = up.Scheme()
	out.URL.Host = up.Location
	out.RequestURI = ""

	if route.KeepOriginalHost {
		out.Host = inbound.Host
	} else {
		out.Host = up.Location
	}

	// Path substitution on the escaped form, byte-for-byte; the query
	// string is carried over untouched in RawQuery.
	if route.ReplacePath != "" {
		escaped := inbound.URL.EscapedPath()
		if rewritten, ok := ReplacePrefix(escaped, route.Path, route.ReplacePath); ok {
			out.URL.RawPath = rewritten
			if unescaped, err := url.PathUnescape(rewritten); err == nil {
				out.URL.Path = unescaped
			} else {
				out.URL.Path = rewritten
			}
		}
	}

	upgrade := IsWebSocketUpgrade(inbound)

	RemoveHopByHop(out.Header)
	if upgrade {
		out.Header.Set("Connection", "upgrade")
		out.Header.Set("Upgrade", "websocket")
	}
	if route.UpgradeInsecureRequests {
		out.Header.Del("Upgrade-Insecure-Requests")
	}

	stampForwarded(out, inbound)

	return out
}

// ReplacePrefix substitutes pattern with replacement at the front of
// the escaped path. The pattern only matches whole segments: it must
// equal the path or be followed by "/". The boolean reports whether a
// substitution happened.
func ReplacePrefix(escapedPath, pattern, replacement string) (string, bool) {
	if pattern == "" {
		return escapedPath, false
	}
	var suffix string
	switch {
	case escapedPath == pattern:
		suffix = ""
	case pattern == "/" && strings.HasPrefix(escapedPath, "/"):
		suffix = escapedPath[1:]
		if suffix != "" {
			suffix = "/" + suffix
		}
	case strings.HasPrefix(escapedPath, pattern+"/"):
		suffix = escapedPath[len(pattern):]
	default:
		return escapedPath, false
	}

	joined := replacement
	if strings.HasSuffix(replacement, "/") && strings.HasPrefix(suffix, "/") {
		joined = replacement[:len(replacement)-1]
	}
	joined += suffix
	if joined == "" {
		joined = "/"
	}
	return joined, true
}

// stampForwarded sets the X-Forwarded-* family and X-Real-IP on the
// outbound request.
func stampForwarded(out, inbound *http.Request) {
	clientIP := clientAddr(inbound)

	if clientIP != "" {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			out.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			out.Header.Set("X-Forwarded-For", clientIP)
		}
		out.Header.Set("X-Real-Ip", clientIP)
	}

	proto := "http"
	if inbound.TLS != nil {
		proto = "https"
	}
	out.Header.Set("X-Forwarded-Proto", proto)
	out.Header.Set("X-Forwarded-Host", inbound.Host)
}

// clientAddr extracts the client IP from the inbound remote address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
