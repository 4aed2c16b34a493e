package server

import (
	"crypto/tls"

	"golang.org/x/crypto/acme"
)

// tlsConfig builds the acceptor configuration for the TLS front.
// Certificate selection runs against the store's current snapshot at
// every handshake; per-application client authentication is applied by
// swapping in a stricter configuration for the matching server names.
func (s *Server) tlsConfig() *tls.Config {
	base := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		NextProtos:     []string{"h2", "http/1.1"},
		GetCertificate: s.getCertificate,
	}
	if s.store.ACME() != nil {
		base.NextProtos = append(base.NextProtos, acme.ALPNProto)
	}

	base.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		entry, ok := s.store.Snapshot().Lookup(hello.ServerName)
		if !ok || entry.ClientCAs == nil {
			return nil, nil
		}
		strict := base.Clone()
		strict.ClientAuth = tls.RequireAndVerifyClientCert
		strict.ClientCAs = entry.ClientCAs
		return strict, nil
	}
	return base
}

// getCertificate resolves the handshake's server name through the
// certificate store and counts failed lookups.
func (s *Server) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, err := s.store.GetCertificate(hello)
	if err != nil {
		s.collect.ObserveHandshakeError()
	}
	return cert, err
}
