package config

// Default values for configuration fields.
const (
	DefaultListenAddress        = "0.0.0.0"
	DefaultMaxClients           = 512
	DefaultMaxConcurrentStreams = 100
	DefaultKeepaliveTimeoutSec  = 75
	DefaultGracefulTimeoutSec   = 30
	DefaultConnectTimeoutSec    = 10
	DefaultRequestTimeoutSec    = 60
	DefaultMaxRetries           = 3
	DefaultMaxHeaderBytes       = 64 * 1024

	DefaultCacheMaxEntries   = 1024
	DefaultCacheMaxEntryBody = int64(1 << 20)

	DefaultLoadBalance      = LBRoundRobin
	DefaultStickyCookieName = "gatehouse_srv_id"

	DefaultACMEDirectoryURL      = "https://acme-v02.api.letsencrypt.org/directory"
	DefaultACMECacheDir          = "./acme_cache"
	DefaultACMERenewalMarginDays = 30
)

// ApplyDefaults fills zero-valued fields with their documented defaults.
// It mutates cfg in place and is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = DefaultMaxConcurrentStreams
	}
	if cfg.KeepaliveTimeoutSec == 0 {
		cfg.KeepaliveTimeoutSec = DefaultKeepaliveTimeoutSec
	}
	if cfg.GracefulTimeoutSec == 0 {
		cfg.GracefulTimeoutSec = DefaultGracefulTimeoutSec
	}
	if cfg.ConnectTimeoutSec == 0 {
		cfg.ConnectTimeoutSec = DefaultConnectTimeoutSec
	}
	if cfg.RequestTimeoutSec == 0 {
		cfg.RequestTimeoutSec = DefaultRequestTimeoutSec
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.MaxEntryBytes == 0 {
		cfg.Cache.MaxEntryBytes = DefaultCacheMaxEntryBody
	}

	if cfg.ACME != nil {
		if cfg.ACME.DirectoryURL == "" {
			cfg.ACME.DirectoryURL = DefaultACMEDirectoryURL
		}
		if cfg.ACME.CacheDir == "" {
			cfg.ACME.CacheDir = DefaultACMECacheDir
		}
		if cfg.ACME.RenewalMarginDays == 0 {
			cfg.ACME.RenewalMarginDays = DefaultACMERenewalMarginDays
		}
	}

	for id, app := range cfg.Apps {
		for i := range app.ReverseProxy {
			route := &app.ReverseProxy[i]
			if route.LoadBalance == "" {
				route.LoadBalance = DefaultLoadBalance
			}
			if route.LoadBalance == LBSticky && route.StickyCookieName == "" {
				route.StickyCookieName = DefaultStickyCookieName
			}
		}
		cfg.Apps[id] = app
	}
}
