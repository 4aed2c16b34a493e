package rewrite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatehouse-hq/gatehouse/pkg/config"
	"gatehouse-hq/gatehouse/pkg/lb"
	"gatehouse-hq/gatehouse/pkg/router"
)

func testRoute(t *testing.T, rc config.RouteConfig) (*router.Route, *lb.Upstream) {
	t.Helper()
	if rc.LoadBalance == "" {
		rc.LoadBalance = config.LBRoundRobin
	}
	if len(rc.Upstream) == 0 {
		rc.Upstream = []config.UpstreamConfig{{Location: "backend.local:8080"}}
	}
	cfg := &config.Config{Apps: map[string]config.AppConfig{
		"app1": {ServerName: "app1.example.com", ReverseProxy: []config.RouteConfig{rc}},
	}}
	ix, err := router.Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, route, err := ix.Lookup("app1.example.com", "/", true)
	if err != nil {
		// Path-specific routes won't match "/"; grab via their path.
		_, route, err = ix.Lookup("app1.example.com", rc.Path, true)
		if err != nil {
			t.Fatal(err)
		}
	}
	return route, route.Group.Upstreams[0]
}

func inboundRequest(method, target string, hdr map[string]string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = "192.0.2.7:51234"
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	return r
}

func TestForwarded_AuthorityAndHost(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{})
	r := inboundRequest("GET", "http://app1.example.com/x", nil)

	out := Forwarded(context.Background(), r, route, up)

	if out.URL.Scheme != "http" {
		t.Errorf("scheme = %q", out.URL.Scheme)
	}
	if out.URL.Host != "backend.local:8080" {
		t.Errorf("authority = %q", out.URL.Host)
	}
	if out.Host != "backend.local:8080" {
		t.Errorf("Host = %q, want upstream authority", out.Host)
	}
	if out.URL.Path != "/x" {
		t.Errorf("path = %q", out.URL.Path)
	}
	if out.RequestURI != "" {
		t.Error("RequestURI must be cleared on client requests")
	}
}

func TestForwarded_KeepOriginalHost(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{
		UpstreamOptions: []string{config.OptKeepOriginalHost},
	})
	r := inboundRequest("GET", "http://app1.example.com/x", nil)

	out := Forwarded(context.Background(), r, route, up)
	if out.Host != "app1.example.com" {
		t.Errorf("Host = %q, want inbound host", out.Host)
	}
}

func TestForwarded_TLSUpstream(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{
		Upstream: []config.UpstreamConfig{{Location: "backend.local:8443", TLS: true, ServerNameOverride: "internal.backend"}},
	})
	r := inboundRequest("GET", "http://app1.example.com/x", nil)

	out := Forwarded(context.Background(), r, route, up)
	if out.URL.Scheme != "https" {
		t.Errorf("scheme = %q, want https", out.URL.Scheme)
	}
	if up.TLSServerName() != "internal.backend" {
		t.Errorf("TLSServerName = %q", up.TLSServerName())
	}
}

func TestForwarded_HopByHopRemoved(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{})
	r := inboundRequest("GET", "http://app1.example.com/x", map[string]string{
		"Connection":          "keep-alive, X-Internal-Debug",
		"Keep-Alive":          "timeout=5",
		"Proxy-Authorization": "Basic xxx",
		"Te":                  "trailers",
		"Trailer":             "Expires",
		"Upgrade":             "h2c",
		"X-Internal-Debug":    "1",
		"Accept":              "text/html",
	})

	out := Forwarded(context.Background(), r, route, up)

	for _, name := range []string{
		"Connection", "Keep-Alive", "Proxy-Authorization", "Te",
		"Trailer", "Upgrade", "X-Internal-Debug",
	} {
		if got := out.Header.Get(name); got != "" {
			t.Errorf("hop-by-hop header %s survived: %q", name, got)
		}
	}
	if out.Header.Get("Accept") != "text/html" {
		t.Error("end-to-end header dropped")
	}
}

func TestForwarded_WebSocketReinserted(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{})
	r := inboundRequest("GET", "http://app1.example.com/ws", map[string]string{
		"Connection":            "Upgrade",
		"Upgrade":               "websocket",
		"Sec-Websocket-Key":     "dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-Websocket-Version": "13",
	})

	out := Forwarded(context.Background(), r, route, up)

	if out.Header.Get("Connection") != "upgrade" {
		t.Errorf("Connection = %q, want upgrade", out.Header.Get("Connection"))
	}
	if out.Header.Get("Upgrade") != "websocket" {
		t.Errorf("Upgrade = %q, want websocket", out.Header.Get("Upgrade"))
	}
	if out.Header.Get("Sec-Websocket-Key") == "" {
		t.Error("websocket handshake headers must survive")
	}
}

func TestForwarded_ForwardedHeaders(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{})

	t.Run("fresh", func(t *testing.T) {
		r := inboundRequest("GET", "http://app1.example.com/x", nil)
		out := Forwarded(context.Background(), r, route, up)

		if got := out.Header.Get("X-Forwarded-For"); got != "192.0.2.7" {
			t.Errorf("X-Forwarded-For = %q", got)
		}
		if got := out.Header.Get("X-Real-Ip"); got != "192.0.2.7" {
			t.Errorf("X-Real-Ip = %q", got)
		}
		if got := out.Header.Get("X-Forwarded-Proto"); got != "http" {
			t.Errorf("X-Forwarded-Proto = %q", got)
		}
		if got := out.Header.Get("X-Forwarded-Host"); got != "app1.example.com" {
			t.Errorf("X-Forwarded-Host = %q", got)
		}
	})

	t.Run("appends to existing chain", func(t *testing.T) {
		r := inboundRequest("GET", "http://app1.example.com/x", map[string]string{
			"X-Forwarded-For": "198.51.100.9",
		})
		out := Forwarded(context.Background(), r, route, up)
		if got := out.Header.Get("X-Forwarded-For"); got != "198.51.100.9, 192.0.2.7" {
			t.Errorf("X-Forwarded-For = %q", got)
		}
	})

	t.Run("https proto", func(t *testing.T) {
		r := inboundRequest("GET", "https://app1.example.com/x", nil)
		out := Forwarded(context.Background(), r, route, up)
		if got := out.Header.Get("X-Forwarded-Proto"); got != "https" {
			t.Errorf("X-Forwarded-Proto = %q", got)
		}
	})
}

func TestReplacePrefix(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		pattern     string
		replacement string
		want        string
		wantMatch   bool
	}{
		{name: "segment suffix", path: "/p/q/x", pattern: "/p/q", replacement: "/r", want: "/r/x", wantMatch: true},
		{name: "exact", path: "/p/q", pattern: "/p/q", replacement: "/r", want: "/r", wantMatch: true},
		{name: "boundary respected", path: "/p/qq", pattern: "/p/q", replacement: "/r", want: "/p/qq", wantMatch: false},
		{name: "strip to root", path: "/api/users", pattern: "/api", replacement: "/", want: "/users", wantMatch: true},
		{name: "exact to root", path: "/api", pattern: "/api", replacement: "/", want: "/", wantMatch: true},
		{name: "root pattern", path: "/x/y", pattern: "/", replacement: "/base", want: "/base/x/y", wantMatch: true},
		{name: "escaped bytes preserved", path: "/p/q/a%2Fb", pattern: "/p/q", replacement: "/r", want: "/r/a%2Fb", wantMatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReplacePrefix(tt.path, tt.pattern, tt.replacement)
			if got != tt.want || ok != tt.wantMatch {
				t.Errorf("ReplacePrefix(%q, %q, %q) = (%q, %v), want (%q, %v)",
					tt.path, tt.pattern, tt.replacement, got, ok, tt.want, tt.wantMatch)
			}
		})
	}
}

func TestReplacePrefix_Idempotent(t *testing.T) {
	once, _ := ReplacePrefix("/p/q/x", "/p/q", "/r")
	twice, _ := ReplacePrefix(once, "/p/q", "/r")
	if once != twice {
		t.Errorf("second application changed the path: %q -> %q", once, twice)
	}
}

func TestForwarded_QueryPreserved(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{
		Path:        "/p",
		ReplacePath: "/r",
	})
	r := inboundRequest("GET", "http://app1.example.com/p/x?y=1&z=a%20b&z=", nil)

	out := Forwarded(context.Background(), r, route, up)
	if out.URL.Path != "/r/x" {
		t.Errorf("path = %q, want /r/x", out.URL.Path)
	}
	if out.URL.RawQuery != "y=1&z=a%20b&z=" {
		t.Errorf("query = %q, must be byte-for-byte identical", out.URL.RawQuery)
	}
}

func TestForwarded_UpgradeInsecureRequestsStripped(t *testing.T) {
	route, up := testRoute(t, config.RouteConfig{
		UpstreamOptions: []string{config.OptUpgradeInsecureRequests},
	})
	r := inboundRequest("GET", "http://app1.example.com/x", map[string]string{
		"Upgrade-Insecure-Requests": "1",
	})

	out := Forwarded(context.Background(), r, route, up)
	if out.Header.Get("Upgrade-Insecure-Requests") != "" {
		t.Error("Upgrade-Insecure-Requests should be stripped")
	}
}
