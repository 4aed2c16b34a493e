package config

import "time"

// Config is the root configuration document for the gatehouse server.
// Field names follow the on-disk key names; timeouts are expressed in
// whole seconds to keep TOML and YAML documents identical.
type Config struct {
	// ListenPort is the plaintext HTTP listener port. 0 disables the
	// plaintext front.
	ListenPort int `toml:"listen_port" yaml:"listen_port"`

	// ListenPortTLS is the TLS listener port. 0 disables TLS.
	ListenPortTLS int `toml:"listen_port_tls" yaml:"listen_port_tls"`

	// ListenPortH3 is the UDP port for the HTTP/3 front. 0 disables
	// HTTP/3. Usually equal to ListenPortTLS.
	ListenPortH3 int `toml:"listen_port_h3" yaml:"listen_port_h3"`

	// ListenAddress is the address the listeners bind to.
	// Default: "0.0.0.0"
	ListenAddress string `toml:"listen_address" yaml:"listen_address"`

	// DefaultApplication names the application that receives plaintext
	// requests whose Host matches no configured server name.
	DefaultApplication string `toml:"default_application" yaml:"default_application"`

	// MaxClients caps concurrently accepted client connections.
	// Default: 512
	MaxClients int `toml:"max_clients" yaml:"max_clients"`

	// MaxConcurrentStreams caps concurrent streams per HTTP/2
	// connection. Default: 100
	MaxConcurrentStreams int `toml:"max_concurrent_streams" yaml:"max_concurrent_streams"`

	// KeepaliveTimeoutSec is the idle timeout for client connections.
	// Default: 75
	KeepaliveTimeoutSec int `toml:"keepalive_timeout_sec" yaml:"keepalive_timeout_sec"`

	// GracefulTimeoutSec bounds connection draining on shutdown.
	// Default: 30
	GracefulTimeoutSec int `toml:"graceful_timeout_sec" yaml:"graceful_timeout_sec"`

	// ConnectTimeoutSec bounds dialing an upstream. Default: 10
	ConnectTimeoutSec int `toml:"connect_timeout_sec" yaml:"connect_timeout_sec"`

	// RequestTimeoutSec bounds the time from dispatching an upstream
	// request to receiving its response headers. Plaintext HTTP/2
	// (h2c) upstreams are not bounded by it. Default: 60
	RequestTimeoutSec int `toml:"request_timeout_sec" yaml:"request_timeout_sec"`

	// MaxRetries caps upstream retries after transport errors.
	// The effective number of attempts per request, the first one
	// included, is min(len(upstreams), max_retries). Default: 3
	MaxRetries int `toml:"max_retries" yaml:"max_retries"`

	// MaxHeaderBytes caps inbound request header size. Default: 64KiB
	MaxHeaderBytes int `toml:"max_header_bytes" yaml:"max_header_bytes"`

	// MaxBodyBytes caps inbound request body size. 0 means unlimited.
	MaxBodyBytes int64 `toml:"max_body_bytes" yaml:"max_body_bytes"`

	// MetricsListen is the optional address of the Prometheus metrics
	// listener (e.g. "127.0.0.1:9113"). Empty disables it.
	MetricsListen string `toml:"metrics_listen" yaml:"metrics_listen"`

	// AnonymizeClientSubnet, when > 0, truncates client addresses in
	// logs to the given IPv4 prefix length (IPv6 addresses are
	// truncated to prefix+32). 0 logs full addresses.
	AnonymizeClientSubnet int `toml:"anonymize_client_subnet" yaml:"anonymize_client_subnet"`

	// Cache configures the optional in-memory response cache.
	Cache CacheConfig `toml:"cache" yaml:"cache"`

	// DefaultTLS is the fallback certificate presented when no SNI
	// entry matches. Nil means unknown SNI fails the handshake.
	DefaultTLS *DefaultTLSConfig `toml:"default_tls" yaml:"default_tls"`

	// ACME carries the shared ACME account settings used by
	// applications with tls.acme = true.
	ACME *ACMEConfig `toml:"acme" yaml:"acme"`

	// Apps maps application ids to their tenant configuration.
	Apps map[string]AppConfig `toml:"apps" yaml:"apps"`
}

// CacheConfig configures the in-memory response cache.
type CacheConfig struct {
	// Enabled turns the cache on. Default: false
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// MaxEntries caps the number of cached responses. Default: 1024
	MaxEntries int `toml:"max_entries" yaml:"max_entries"`

	// MaxEntryBytes caps the body size of a cacheable response.
	// Default: 1MiB
	MaxEntryBytes int64 `toml:"max_entry_bytes" yaml:"max_entry_bytes"`
}

// DefaultTLSConfig is the fallback certificate served for unmatched SNI.
type DefaultTLSConfig struct {
	TLSCertPath    string `toml:"tls_cert_path" yaml:"tls_cert_path"`
	TLSCertKeyPath string `toml:"tls_cert_key_path" yaml:"tls_cert_key_path"`
}

// ACMEConfig carries shared ACME account settings.
type ACMEConfig struct {
	// DirectoryURL is the ACME directory endpoint.
	// Default: Let's Encrypt production.
	DirectoryURL string `toml:"directory_url" yaml:"directory_url"`

	// Contact is the account contact mail address (without mailto:).
	Contact string `toml:"contact" yaml:"contact"`

	// CacheDir stores the account key and issued certificates.
	// Default: "./acme_cache"
	CacheDir string `toml:"cache_dir" yaml:"cache_dir"`

	// RenewalMarginDays triggers renewal when a certificate has fewer
	// days than this left. Default: 30
	RenewalMarginDays int `toml:"renewal_margin_days" yaml:"renewal_margin_days"`
}

// AppConfig is the configuration of a single application (tenant).
type AppConfig struct {
	// ServerName is the canonical DNS name of the application.
	// A leading "*." label makes it a single-label wildcard.
	ServerName string `toml:"server_name" yaml:"server_name"`

	// TLS enables TLS termination for this application.
	TLS *AppTLSConfig `toml:"tls" yaml:"tls"`

	// ReverseProxy is the ordered route list. Exactly one route may
	// omit path; it becomes the default route.
	ReverseProxy []RouteConfig `toml:"reverse_proxy" yaml:"reverse_proxy"`
}

// AppTLSConfig is the per-application TLS block.
type AppTLSConfig struct {
	// TLSCertPath is the PEM certificate chain file.
	TLSCertPath string `toml:"tls_cert_path" yaml:"tls_cert_path"`

	// TLSCertKeyPath is the PEM PKCS8 private key file.
	TLSCertKeyPath string `toml:"tls_cert_key_path" yaml:"tls_cert_key_path"`

	// HTTPSRedirection redirects plaintext requests for this
	// application to https. Default: true when TLS is configured.
	HTTPSRedirection *bool `toml:"https_redirection" yaml:"https_redirection"`

	// OCSPStaplePath, when set, staples the DER-encoded OCSP
	// response from this file onto handshakes for the application.
	OCSPStaplePath string `toml:"ocsp_staple_path" yaml:"ocsp_staple_path"`

	// ClientCACertPath, when set, requires and verifies client
	// certificates against the given PEM CA bundle.
	ClientCACertPath string `toml:"client_ca_cert_path" yaml:"client_ca_cert_path"`

	// ACME marks the certificate as ACME-managed. Requires the
	// top-level acme block; cert/key paths must then be empty.
	ACME bool `toml:"acme" yaml:"acme"`
}

// RouteConfig is one routing rule within an application.
type RouteConfig struct {
	// Path is the matched prefix. Empty marks the default route.
	// Must start with "/" when present.
	Path string `toml:"path" yaml:"path"`

	// ReplacePath substitutes the matched prefix in the forwarded
	// request path.
	ReplacePath string `toml:"replace_path" yaml:"replace_path"`

	// LoadBalance is one of "round_robin", "random", "sticky".
	// Default: "round_robin"
	LoadBalance string `toml:"load_balance" yaml:"load_balance"`

	// StickyCookieName overrides the affinity cookie name.
	// Default: "gatehouse_srv_id"
	StickyCookieName string `toml:"sticky_cookie_name" yaml:"sticky_cookie_name"`

	// StickyTTLSec sets the affinity cookie Max-Age. 0 means a
	// session cookie.
	StickyTTLSec int `toml:"sticky_ttl_sec" yaml:"sticky_ttl_sec"`

	// UpstreamOptions tweak forwarding behavior. Known options:
	// "keep_original_host", "upgrade_insecure_requests",
	// "force_http11_upstream", "force_http2_upstream".
	UpstreamOptions []string `toml:"upstream_options" yaml:"upstream_options"`

	// Upstream is the ordered upstream location list.
	Upstream []UpstreamConfig `toml:"upstream" yaml:"upstream"`
}

// UpstreamConfig is a single upstream location.
type UpstreamConfig struct {
	// Location is the authority (host:port) of the backend.
	Location string `toml:"location" yaml:"location"`

	// TLS selects https towards the backend.
	TLS bool `toml:"tls" yaml:"tls"`

	// ServerNameOverride replaces the SNI sent to a TLS backend.
	// Default: the host part of Location.
	ServerNameOverride string `toml:"server_name_override" yaml:"server_name_override"`
}

// Load-balancing policy names accepted in RouteConfig.LoadBalance.
const (
	LBRoundRobin = "round_robin"
	LBRandom     = "random"
	LBSticky     = "sticky"
)

// Upstream option names accepted in RouteConfig.UpstreamOptions.
const (
	OptKeepOriginalHost        = "keep_original_host"
	OptUpgradeInsecureRequests = "upgrade_insecure_requests"
	OptForceHTTP11Upstream     = "force_http11_upstream"
	OptForceHTTP2Upstream      = "force_http2_upstream"
)

// KeepaliveTimeout returns the idle timeout as a duration.
func (c *Config) KeepaliveTimeout() time.Duration {
	return time.Duration(c.KeepaliveTimeoutSec) * time.Second
}

// GracefulTimeout returns the shutdown drain deadline as a duration.
func (c *Config) GracefulTimeout() time.Duration {
	return time.Duration(c.GracefulTimeoutSec) * time.Second
}

// ConnectTimeout returns the upstream dial timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// RequestTimeout returns the upstream response-header timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// HasRedirection reports whether plaintext requests for the app should
// be redirected to https.
func (t *AppTLSConfig) HasRedirection() bool {
	if t == nil {
		return false
	}
	if t.HTTPSRedirection == nil {
		return true
	}
	return *t.HTTPSRedirection
}

// HasOption reports whether the route carries the named upstream option.
func (r *RouteConfig) HasOption(name string) bool {
	for _, o := range r.UpstreamOptions {
		if o == name {
			return true
		}
	}
	return false
}
