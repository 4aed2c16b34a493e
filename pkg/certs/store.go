package certs

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"gatehouse-hq/gatehouse/pkg/config"
)

// ErrNoCertificate is returned when no entry covers a server name and
// no default certificate is configured. The TLS acceptor turns it into
// a failed handshake.
var ErrNoCertificate = errors.New("no certificate for server name")

// Snapshot is an immutable view of the certificate store. Readers hold
// a snapshot for the duration of a handshake and never observe partial
// updates.
type Snapshot struct {
	// exact maps concrete server names to entries.
	exact map[string]*Entry

	// wildcard maps wildcard forms ("*.example.com") to entries.
	wildcard map[string]*Entry

	// fallback is the optional default certificate.
	fallback *Entry

	// builtAt records when the snapshot was assembled.
	builtAt time.Time
}

// Lookup resolves an SNI string: exact name first, then the wildcard
// form covering its leftmost label, then the default certificate.
// The boolean reports whether any entry matched.
func (s *Snapshot) Lookup(sni string) (*Entry, bool) {
	name := NormalizeName(sni)

	if e, ok := s.exact[name]; ok {
		return e, true
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		if e, ok := s.wildcard["*"+name[i:]]; ok {
			return e, true
		}
	}
	if s.fallback != nil {
		return s.fallback, true
	}
	return nil, false
}

// Entries returns all named entries of the snapshot. The default
// certificate is not included.
func (s *Snapshot) Entries() []*Entry {
	out := make([]*Entry, 0, len(s.exact)+len(s.wildcard))
	for _, e := range s.exact {
		out = append(out, e)
	}
	for _, e := range s.wildcard {
		out = append(out, e)
	}
	return out
}

// Store is the hot-reloadable certificate store. It publishes
// snapshots through an atomic pointer; Reload swaps in a fully built
// replacement or leaves the current snapshot untouched on failure.
type Store struct {
	snapshot atomic.Pointer[Snapshot]

	// acme manages ACME-issued material across reloads. Nil when no
	// application is ACME-managed.
	acme *Manager
}

// NewStore builds a store from the configuration. When the top-level
// acme block is present, an ACME manager is created from it; Reload
// rejects ACME-managed applications when that block is absent.
func NewStore(cfg *config.Config) (*Store, error) {
	s := &Store{}
	if cfg.ACME != nil {
		s.acme = NewManager(cfg.ACME)
	}
	if err := s.Reload(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload builds and validates a new snapshot from cfg and swaps it in.
// On error the previous snapshot keeps serving.
func (s *Store) Reload(cfg *config.Config) error {
	snap, acmeNames, err := buildSnapshot(cfg)
	if err != nil {
		return err
	}
	if len(acmeNames) > 0 {
		if s.acme == nil {
			return fmt.Errorf("acme-managed applications present but no acme account configured")
		}
		s.acme.SetHosts(acmeNames)
	}
	s.snapshot.Store(snap)

	slog.Info("certificate store updated",
		"entries", len(snap.exact)+len(snap.wildcard),
		"acme_managed", len(acmeNames),
		"default_certificate", snap.fallback != nil,
	)
	return nil
}

// buildSnapshot loads and validates every TLS-enabled application.
func buildSnapshot(cfg *config.Config) (*Snapshot, []string, error) {
	snap := &Snapshot{
		exact:    make(map[string]*Entry),
		wildcard: make(map[string]*Entry),
		builtAt:  time.Now(),
	}
	var acmeNames []string

	for id, app := range cfg.Apps {
		if app.TLS == nil {
			continue
		}
		name := NormalizeName(app.ServerName)

		var entry *Entry
		if app.TLS.ACME {
			if strings.HasPrefix(name, "*.") {
				return nil, nil, fmt.Errorf("app %s: acme cannot issue for wildcard name %q with the tls-alpn-01 challenge", id, name)
			}
			entry = &Entry{ServerName: name, ACME: true}
			acmeNames = append(acmeNames, name)
		} else {
			var err error
			entry, err = LoadEntry(name, app.TLS.TLSCertPath, app.TLS.TLSCertKeyPath)
			if err != nil {
				return nil, nil, fmt.Errorf("app %s: %w", id, err)
			}
		}

		if app.TLS.OCSPStaplePath != "" {
			staple, err := readFileWrapped(app.TLS.OCSPStaplePath, "OCSP staple")
			if err != nil {
				return nil, nil, fmt.Errorf("app %s: %w", id, err)
			}
			entry.Certificate.OCSPStaple = staple
		}

		if app.TLS.ClientCACertPath != "" {
			pool, err := LoadClientCAPool(app.TLS.ClientCACertPath)
			if err != nil {
				return nil, nil, fmt.Errorf("app %s: %w", id, err)
			}
			entry.ClientCAs = pool
		}

		if strings.HasPrefix(name, "*.") {
			snap.wildcard[name] = entry
		} else {
			snap.exact[name] = entry
		}
	}

	if cfg.DefaultTLS != nil {
		fallback, err := loadDefaultEntry(cfg.DefaultTLS)
		if err != nil {
			return nil, nil, err
		}
		snap.fallback = fallback
	}

	return snap, acmeNames, nil
}

// loadDefaultEntry loads the fallback certificate. It skips the SAN
// check since the fallback serves arbitrary names.
func loadDefaultEntry(dt *config.DefaultTLSConfig) (*Entry, error) {
	certPEM, err := readFileWrapped(dt.TLSCertPath, "default certificate")
	if err != nil {
		return nil, err
	}
	keyPEM, err := readFileWrapped(dt.TLSCertKeyPath, "default certificate key")
	if err != nil {
		return nil, err
	}

	chain, err := parseChain(certPEM)
	if err != nil {
		return nil, fmt.Errorf("default certificate: %w", err)
	}
	key, err := parsePKCS8Key(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("default certificate key: %w", err)
	}
	leaf, err := parseLeafMatching(chain, key)
	if err != nil {
		return nil, fmt.Errorf("default certificate: %w", err)
	}

	return &Entry{
		Certificate: tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf},
		Leaf:        leaf,
	}, nil
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// ACME returns the store's ACME manager, or nil.
func (s *Store) ACME() *Manager {
	return s.acme
}

// GetCertificate implements the tls.Config.GetCertificate contract.
// ACME challenge handshakes (acme-tls/1 ALPN) and ACME-managed entries
// are delegated to the ACME manager; everything else is served from the
// current snapshot.
func (s *Store) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if s.acme != nil && isALPNChallenge(hello) {
		return s.acme.GetCertificate(hello)
	}

	entry, ok := s.Snapshot().Lookup(hello.ServerName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoCertificate, hello.ServerName)
	}
	if entry.ACME {
		return s.acme.GetCertificate(hello)
	}
	return &entry.Certificate, nil
}

// Audit logs and returns the expiry margin of every loaded entry. It
// backs the scheduled certificate sweep and the days-to-expiry gauge.
func (s *Store) Audit(now time.Time) map[string]int {
	snap := s.Snapshot()
	out := make(map[string]int)
	for _, e := range snap.Entries() {
		days := e.DaysUntilExpiry(now)
		if days < 0 {
			continue
		}
		out[e.ServerName] = days
		if days < 14 {
			slog.Warn("certificate expiring soon",
				"server_name", e.ServerName,
				"expires_in_days", days,
				"expires_at", e.Leaf.NotAfter.Format(time.RFC3339),
			)
		}
	}
	return out
}
