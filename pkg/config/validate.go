package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FieldError is a validation error for a single configuration field.
type FieldError struct {
	// Field is the dotted path of the offending field
	// (e.g. "apps.app1.server_name").
	Field string

	// Message is a human-readable description of the problem.
	Message string
}

// Error returns the formatted field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates all field errors found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the whole configuration and returns a ValidationError
// listing every violation, or nil when the document is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateListeners(cfg)...)
	errs = append(errs, validateApps(cfg)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateListeners(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.ListenPort == 0 && cfg.ListenPortTLS == 0 {
		errs = append(errs, FieldError{"listen_port", "at least one of listen_port and listen_port_tls must be set"})
	}
	for field, port := range map[string]int{
		"listen_port":     cfg.ListenPort,
		"listen_port_tls": cfg.ListenPortTLS,
		"listen_port_h3":  cfg.ListenPortH3,
	} {
		if port < 0 || port > 65535 {
			errs = append(errs, FieldError{field, fmt.Sprintf("port %d out of range", port)})
		}
	}
	if cfg.ListenPort != 0 && cfg.ListenPort == cfg.ListenPortTLS {
		errs = append(errs, FieldError{"listen_port_tls", "must differ from listen_port"})
	}
	if cfg.ListenPortH3 != 0 && cfg.ListenPortTLS == 0 {
		errs = append(errs, FieldError{"listen_port_h3", "HTTP/3 requires listen_port_tls"})
	}
	if cfg.MaxClients < 0 {
		errs = append(errs, FieldError{"max_clients", "must not be negative"})
	}
	if cfg.AnonymizeClientSubnet < 0 || cfg.AnonymizeClientSubnet > 32 {
		errs = append(errs, FieldError{"anonymize_client_subnet", "must be an IPv4 prefix length (0-32)"})
	}
	if cfg.DefaultTLS != nil {
		if cfg.DefaultTLS.TLSCertPath == "" || cfg.DefaultTLS.TLSCertKeyPath == "" {
			errs = append(errs, FieldError{"default_tls", "both tls_cert_path and tls_cert_key_path are required"})
		}
	}
	return errs
}

func validateApps(cfg *Config) []FieldError {
	var errs []FieldError

	if len(cfg.Apps) == 0 {
		errs = append(errs, FieldError{"apps", "at least one application is required"})
	}
	if cfg.DefaultApplication != "" {
		if _, ok := cfg.Apps[cfg.DefaultApplication]; !ok {
			errs = append(errs, FieldError{"default_application", fmt.Sprintf("unknown application %q", cfg.DefaultApplication)})
		}
	}

	seenNames := make(map[string]string)
	for id, app := range cfg.Apps {
		prefix := "apps." + id

		name := strings.ToLower(strings.TrimSuffix(app.ServerName, "."))
		if name == "" {
			errs = append(errs, FieldError{prefix + ".server_name", "required"})
		} else if err := validateServerName(name); err != nil {
			errs = append(errs, FieldError{prefix + ".server_name", err.Error()})
		} else if other, dup := seenNames[name]; dup {
			errs = append(errs, FieldError{prefix + ".server_name", fmt.Sprintf("duplicate of apps.%s", other)})
		} else {
			seenNames[name] = id
		}

		if app.TLS != nil {
			errs = append(errs, validateAppTLS(cfg, prefix+".tls", app.TLS)...)
		}
		errs = append(errs, validateRoutes(prefix+".reverse_proxy", app.ReverseProxy)...)
	}
	return errs
}

// validateServerName accepts a DNS host name, optionally with a single
// leading wildcard label. Multi-label wildcards and embedded asterisks
// are rejected.
func validateServerName(name string) error {
	rest := name
	if strings.HasPrefix(name, "*.") {
		rest = name[2:]
		if rest == "" || !strings.Contains(rest, ".") {
			return fmt.Errorf("wildcard %q must cover exactly one label of a multi-label name", name)
		}
	}
	if strings.Contains(rest, "*") {
		return fmt.Errorf("%q: wildcard is only allowed as the leftmost label", name)
	}
	for _, label := range strings.Split(rest, ".") {
		if label == "" {
			return fmt.Errorf("%q contains an empty label", name)
		}
	}
	return nil
}

func validateAppTLS(cfg *Config, prefix string, tls *AppTLSConfig) []FieldError {
	var errs []FieldError

	if tls.ACME {
		if cfg.ACME == nil {
			errs = append(errs, FieldError{prefix + ".acme", "requires the top-level acme block"})
		}
		if tls.TLSCertPath != "" || tls.TLSCertKeyPath != "" {
			errs = append(errs, FieldError{prefix, "acme and tls_cert_path/tls_cert_key_path are mutually exclusive"})
		}
	} else {
		if tls.TLSCertPath == "" || tls.TLSCertKeyPath == "" {
			errs = append(errs, FieldError{prefix, "both tls_cert_path and tls_cert_key_path are required unless acme = true"})
		}
	}
	return errs
}

func validateRoutes(prefix string, routes []RouteConfig) []FieldError {
	var errs []FieldError

	if len(routes) == 0 {
		errs = append(errs, FieldError{prefix, "at least one route is required"})
		return errs
	}

	defaults := 0
	seenPaths := make(map[string]bool)
	for i := range routes {
		route := &routes[i]
		rp := fmt.Sprintf("%s[%d]", prefix, i)

		if route.Path == "" {
			defaults++
			if defaults > 1 {
				errs = append(errs, FieldError{rp + ".path", "multiple routes without path; only one default route is allowed"})
			}
		} else {
			if !strings.HasPrefix(route.Path, "/") {
				errs = append(errs, FieldError{rp + ".path", "must start with /"})
			}
			p := strings.TrimSuffix(route.Path, "/")
			if p == "" {
				p = "/"
			}
			if seenPaths[p] {
				errs = append(errs, FieldError{rp + ".path", fmt.Sprintf("duplicate path pattern %q", route.Path)})
			}
			seenPaths[p] = true
		}

		if route.ReplacePath != "" && !strings.HasPrefix(route.ReplacePath, "/") {
			errs = append(errs, FieldError{rp + ".replace_path", "must start with /"})
		}
		if route.ReplacePath != "" && route.Path == "" {
			errs = append(errs, FieldError{rp + ".replace_path", "requires path"})
		}

		switch route.LoadBalance {
		case LBRoundRobin, LBRandom, LBSticky:
		default:
			errs = append(errs, FieldError{rp + ".load_balance", fmt.Sprintf("unknown policy %q", route.LoadBalance)})
		}
		if route.StickyTTLSec < 0 {
			errs = append(errs, FieldError{rp + ".sticky_ttl_sec", "must not be negative"})
		}

		for _, opt := range route.UpstreamOptions {
			switch opt {
			case OptKeepOriginalHost, OptUpgradeInsecureRequests,
				OptForceHTTP11Upstream, OptForceHTTP2Upstream:
			default:
				errs = append(errs, FieldError{rp + ".upstream_options", fmt.Sprintf("unknown option %q", opt)})
			}
		}
		if route.HasOption(OptForceHTTP11Upstream) && route.HasOption(OptForceHTTP2Upstream) {
			errs = append(errs, FieldError{rp + ".upstream_options", "force_http11_upstream and force_http2_upstream are mutually exclusive"})
		}

		if len(route.Upstream) == 0 {
			errs = append(errs, FieldError{rp + ".upstream", "at least one upstream is required"})
		}
		for j, up := range route.Upstream {
			upPrefix := fmt.Sprintf("%s.upstream[%d]", rp, j)
			if err := validateLocation(up.Location); err != nil {
				errs = append(errs, FieldError{upPrefix + ".location", err.Error()})
			}
			if up.ServerNameOverride != "" && !up.TLS {
				errs = append(errs, FieldError{upPrefix + ".server_name_override", "only meaningful with tls = true"})
			}
		}
	}
	return errs
}

// validateLocation checks a host:port authority.
func validateLocation(location string) error {
	if location == "" {
		return fmt.Errorf("required")
	}
	host, port, err := net.SplitHostPort(location)
	if err != nil {
		return fmt.Errorf("%q is not a host:port authority", location)
	}
	if host == "" {
		return fmt.Errorf("%q has an empty host", location)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%q has an invalid port", location)
	}
	return nil
}
