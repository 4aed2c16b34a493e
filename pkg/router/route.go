package router

import (
	"gatehouse-hq/gatehouse/pkg/config"
	"gatehouse-hq/gatehouse/pkg/lb"
)

// Route is one compiled routing rule.
type Route struct {
	// AppID is the owning application id.
	AppID string

	// Path is the matched prefix; empty for the default route.
	Path string

	// ReplacePath substitutes the matched prefix in the forwarded
	// path. Empty means the path is forwarded unchanged.
	ReplacePath string

	// Group selects the upstream location per request.
	Group *lb.Group

	// KeepOriginalHost preserves the inbound Host header instead of
	// rewriting it to the upstream authority.
	KeepOriginalHost bool

	// UpgradeInsecureRequests strips the Upgrade-Insecure-Requests
	// header on forward.
	UpgradeInsecureRequests bool

	// ALPNPreference pins the upstream protocol: "" (negotiate),
	// "http/1.1", or "h2".
	ALPNPreference string
}

// Application is one compiled tenant.
type Application struct {
	// ID is the application id (the apps map key).
	ID string

	// ServerName is the normalized canonical name, possibly a
	// wildcard form.
	ServerName string

	// TLS reports whether the application terminates TLS.
	TLS bool

	// HTTPSRedirection redirects plaintext requests to https.
	HTTPSRedirection bool

	// trie matches routes with an explicit path.
	trie *pathTrie

	// defaultRoute catches paths no explicit route matches; nil when
	// the application only has path-specific routes.
	defaultRoute *Route
}

// Match resolves a request path within the application: the longest
// matching explicit route wins, then the default route. The boolean is
// false when nothing matches.
func (a *Application) Match(path string) (*Route, bool) {
	if r := a.trie.match(path); r != nil {
		return r, true
	}
	if a.defaultRoute != nil {
		return a.defaultRoute, true
	}
	return nil, false
}

// compileRoute builds a Route from its configuration.
func compileRoute(appID string, rc *config.RouteConfig) *Route {
	alpn := ""
	switch {
	case rc.HasOption(config.OptForceHTTP11Upstream):
		alpn = "http/1.1"
	case rc.HasOption(config.OptForceHTTP2Upstream):
		alpn = "h2"
	}
	return &Route{
		AppID:                   appID,
		Path:                    normalizePathPattern(rc.Path),
		ReplacePath:             rc.ReplacePath,
		Group:                   lb.NewGroup(rc),
		KeepOriginalHost:        rc.HasOption(config.OptKeepOriginalHost),
		UpgradeInsecureRequests: rc.HasOption(config.OptUpgradeInsecureRequests),
		ALPNPreference:          alpn,
	}
}

// normalizePathPattern trims a trailing slash so "/p/" and "/p" compile
// to the same pattern; the bare root pattern stays "/".
func normalizePathPattern(p string) string {
	if p == "" || p == "/" {
		return p
	}
	for len(p) > 1 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
