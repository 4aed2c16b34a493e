package config

import (
	"strings"
	"testing"
)

// validConfig returns a configuration that passes validation; tests
// mutate copies of it.
func validConfig() *Config {
	cfg := &Config{
		ListenPort: 8080,
		Apps: map[string]AppConfig{
			"app1": {
				ServerName: "app1.example.com",
				ReverseProxy: []RouteConfig{
					{
						Upstream: []UpstreamConfig{{Location: "app1.local:8080"}},
					},
				},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "no listeners",
			mutate:  func(c *Config) { c.ListenPort = 0 },
			wantSub: "listen_port",
		},
		{
			name: "tls port equals plaintext port",
			mutate: func(c *Config) {
				c.ListenPortTLS = c.ListenPort
			},
			wantSub: "must differ",
		},
		{
			name: "h3 without tls",
			mutate: func(c *Config) {
				c.ListenPortH3 = 443
			},
			wantSub: "listen_port_h3",
		},
		{
			name:    "no apps",
			mutate:  func(c *Config) { c.Apps = nil },
			wantSub: "at least one application",
		},
		{
			name:    "unknown default application",
			mutate:  func(c *Config) { c.DefaultApplication = "ghost" },
			wantSub: "default_application",
		},
		{
			name: "missing server name",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ServerName = ""
				c.Apps["app1"] = app
			},
			wantSub: "server_name",
		},
		{
			name: "multi-label wildcard",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ServerName = "*.*.example.com"
				c.Apps["app1"] = app
			},
			wantSub: "wildcard",
		},
		{
			name: "bare wildcard",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ServerName = "*."
				c.Apps["app1"] = app
			},
			wantSub: "wildcard",
		},
		{
			name: "duplicate server name",
			mutate: func(c *Config) {
				c.Apps["app2"] = AppConfig{
					ServerName: "APP1.example.com.",
					ReverseProxy: []RouteConfig{
						{LoadBalance: LBRoundRobin, Upstream: []UpstreamConfig{{Location: "x:1"}}},
					},
				}
			},
			wantSub: "duplicate",
		},
		{
			name: "two default routes",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy = append(app.ReverseProxy, RouteConfig{
					LoadBalance: LBRoundRobin,
					Upstream:    []UpstreamConfig{{Location: "b:1"}},
				})
				c.Apps["app1"] = app
			},
			wantSub: "default route",
		},
		{
			name: "duplicate path pattern",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy = append(app.ReverseProxy,
					RouteConfig{Path: "/p", LoadBalance: LBRoundRobin, Upstream: []UpstreamConfig{{Location: "b:1"}}},
					RouteConfig{Path: "/p/", LoadBalance: LBRoundRobin, Upstream: []UpstreamConfig{{Location: "c:1"}}},
				)
				c.Apps["app1"] = app
			},
			wantSub: "duplicate path",
		},
		{
			name: "relative path",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].Path = "p"
				c.Apps["app1"] = app
			},
			wantSub: "must start with /",
		},
		{
			name: "replace_path without path",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].ReplacePath = "/r"
				c.Apps["app1"] = app
			},
			wantSub: "requires path",
		},
		{
			name: "unknown policy",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].LoadBalance = "fastest"
				c.Apps["app1"] = app
			},
			wantSub: "unknown policy",
		},
		{
			name: "unknown upstream option",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].UpstreamOptions = []string{"disable_everything"}
				c.Apps["app1"] = app
			},
			wantSub: "unknown option",
		},
		{
			name: "conflicting protocol pins",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].UpstreamOptions = []string{OptForceHTTP11Upstream, OptForceHTTP2Upstream}
				c.Apps["app1"] = app
			},
			wantSub: "mutually exclusive",
		},
		{
			name: "no upstreams",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].Upstream = nil
				c.Apps["app1"] = app
			},
			wantSub: "at least one upstream",
		},
		{
			name: "location without port",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].Upstream = []UpstreamConfig{{Location: "app1.local"}}
				c.Apps["app1"] = app
			},
			wantSub: "host:port",
		},
		{
			name: "server name override on plaintext upstream",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.ReverseProxy[0].Upstream = []UpstreamConfig{{Location: "a:1", ServerNameOverride: "b"}}
				c.Apps["app1"] = app
			},
			wantSub: "server_name_override",
		},
		{
			name: "tls without material",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.TLS = &AppTLSConfig{}
				c.Apps["app1"] = app
			},
			wantSub: "tls_cert_path",
		},
		{
			name: "acme without account",
			mutate: func(c *Config) {
				app := c.Apps["app1"]
				app.TLS = &AppTLSConfig{ACME: true}
				c.Apps["app1"] = app
			},
			wantSub: "acme block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestValidate_WildcardServerName(t *testing.T) {
	cfg := validConfig()
	app := cfg.Apps["app1"]
	app.ServerName = "*.example.com"
	cfg.Apps["app1"] = app

	if err := Validate(cfg); err != nil {
		t.Errorf("single-label wildcard should be valid, got: %v", err)
	}
}
