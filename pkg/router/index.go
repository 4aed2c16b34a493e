package router

import (
	"errors"
	"fmt"
	"strings"

	"gatehouse-hq/gatehouse/pkg/config"
)

// Lookup failures. The proxy maps ErrNoApplication to 404 on plaintext
// (on TLS the handshake already failed at the SNI miss) and ErrNoRoute
// to 404.
var (
	ErrNoApplication = errors.New("no application for host")
	ErrNoRoute       = errors.New("no route for path")
)

// Index is the immutable routing table. Build constructs it from a
// validated configuration; lookups are pure and deterministic.
type Index struct {
	// exact maps concrete server names to applications.
	exact map[string]*Application

	// wildcard maps wildcard forms ("*.example.com") to applications.
	wildcard map[string]*Application

	// defaultApp receives plaintext requests whose host matches no
	// server name; nil when default_application is unset.
	defaultApp *Application
}

// Build compiles the routing table. Route-level conflicts that
// validation cannot express structurally (duplicate path patterns
// after normalization) are reported here as build errors.
func Build(cfg *config.Config) (*Index, error) {
	ix := &Index{
		exact:    make(map[string]*Application),
		wildcard: make(map[string]*Application),
	}

	for id, appCfg := range cfg.Apps {
		app, err := buildApplication(id, &appCfg)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(app.ServerName, "*.") {
			ix.wildcard[app.ServerName] = app
		} else {
			ix.exact[app.ServerName] = app
		}
	}

	if cfg.DefaultApplication != "" {
		name := normalizeHost(cfg.Apps[cfg.DefaultApplication].ServerName)
		if app, ok := ix.exact[name]; ok {
			ix.defaultApp = app
		} else if app, ok := ix.wildcard[name]; ok {
			ix.defaultApp = app
		}
	}

	return ix, nil
}

func buildApplication(id string, appCfg *config.AppConfig) (*Application, error) {
	app := &Application{
		ID:               id,
		ServerName:       normalizeHost(appCfg.ServerName),
		TLS:              appCfg.TLS != nil,
		HTTPSRedirection: appCfg.TLS.HasRedirection(),
		trie:             newPathTrie(),
	}

	for i := range appCfg.ReverseProxy {
		route := compileRoute(id, &appCfg.ReverseProxy[i])
		if route.Path == "" {
			if app.defaultRoute != nil {
				return nil, fmt.Errorf("app %s: multiple default routes", id)
			}
			app.defaultRoute = route
			continue
		}
		if !app.trie.insert(route.Path, route) {
			return nil, fmt.Errorf("app %s: duplicate path pattern %q", id, route.Path)
		}
	}
	return app, nil
}

// LookupApp resolves a request host to an application: exact name
// first, then the wildcard covering its leftmost label. On plaintext
// (viaTLS false) an unmatched host falls back to the default
// application when one is configured.
func (ix *Index) LookupApp(host string, viaTLS bool) (*Application, error) {
	name := normalizeHost(host)

	if app, ok := ix.exact[name]; ok {
		return app, nil
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		if app, ok := ix.wildcard["*"+name[i:]]; ok {
			return app, nil
		}
	}
	if !viaTLS && ix.defaultApp != nil {
		return ix.defaultApp, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoApplication, name)
}

// Lookup resolves (host, path) to the matched application and route.
func (ix *Index) Lookup(host, path string, viaTLS bool) (*Application, *Route, error) {
	app, err := ix.LookupApp(host, viaTLS)
	if err != nil {
		return nil, nil, err
	}
	route, ok := app.Match(path)
	if !ok {
		return app, nil, fmt.Errorf("%w: app %s, path %q", ErrNoRoute, app.ID, path)
	}
	return app, route, nil
}

// Applications returns all compiled applications, for diagnostics.
func (ix *Index) Applications() []*Application {
	out := make([]*Application, 0, len(ix.exact)+len(ix.wildcard))
	for _, a := range ix.exact {
		out = append(out, a)
	}
	for _, a := range ix.wildcard {
		out = append(out, a)
	}
	return out
}

// normalizeHost lowercases a host, trims the trailing dot, and drops
// any port.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	// Strip a port if present; bracketed IPv6 literals keep their
	// brackets' content intact.
	if strings.HasPrefix(host, "[") {
		if i := strings.IndexByte(host, ']'); i >= 0 {
			return host[1:i]
		}
		return host
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && strings.Count(host, ":") == 1 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}
