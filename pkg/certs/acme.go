package certs

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"gatehouse-hq/gatehouse/pkg/config"
)

// Manager issues and renews certificates for ACME-managed applications.
// It wraps an autocert manager configured against the account's
// directory URL and solves the TLS-ALPN-01 challenge: challenge
// handshakes arrive through the regular SNI lookup path and are routed
// here by the store.
//
// The manager survives configuration reloads; only its host allow-list
// is replaced, so issued certificates and the account key are reused.
type Manager struct {
	inner *autocert.Manager

	mu    sync.RWMutex
	hosts map[string]struct{}
}

// NewManager creates an ACME manager from the account configuration.
func NewManager(cfg *config.ACMEConfig) *Manager {
	m := &Manager{hosts: make(map[string]struct{})}

	m.inner = &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(cfg.CacheDir),
		Email:  cfg.Contact,
		Client: &acme.Client{
			DirectoryURL: cfg.DirectoryURL,
		},
		RenewBefore: time.Duration(cfg.RenewalMarginDays) * 24 * time.Hour,
		HostPolicy:  m.hostPolicy,
	}
	return m
}

// SetHosts replaces the set of server names the manager may issue for.
// Called on every snapshot rebuild.
func (m *Manager) SetHosts(names []string) {
	hosts := make(map[string]struct{}, len(names))
	for _, n := range names {
		hosts[NormalizeName(n)] = struct{}{}
	}
	m.mu.Lock()
	m.hosts = hosts
	m.mu.Unlock()
}

// hostPolicy admits only currently configured ACME-managed names.
func (m *Manager) hostPolicy(_ context.Context, host string) error {
	m.mu.RLock()
	_, ok := m.hosts[NormalizeName(host)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("host %q is not acme-managed", host)
	}
	return nil
}

// GetCertificate returns the issued (or challenge) certificate for the
// handshake. Orders, challenge solving, and renewal happen inside.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return m.inner.GetCertificate(hello)
}

// Refresh walks every managed host and requests its certificate,
// triggering issuance for new names and renewal for certificates inside
// the renewal margin. Issuance failures are logged and retried on the
// next sweep; the previous certificate keeps serving until it expires.
func (m *Manager) Refresh(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.hosts))
	for n := range m.hosts {
		names = append(names, n)
	}
	m.mu.RUnlock()

	for _, name := range names {
		select {
		case <-ctx.Done():
			return
		default:
		}
		hello := &tls.ClientHelloInfo{ServerName: name}
		if _, err := m.inner.GetCertificate(hello); err != nil {
			slog.Warn("acme certificate refresh failed",
				"server_name", name,
				"error", err,
			)
		} else {
			slog.Debug("acme certificate present", "server_name", name)
		}
	}
}

// isALPNChallenge reports whether the handshake is a TLS-ALPN-01
// challenge probe from the ACME server.
func isALPNChallenge(hello *tls.ClientHelloInfo) bool {
	for _, proto := range hello.SupportedProtos {
		if proto == acme.ALPNProto {
			return true
		}
	}
	return false
}
