package certs

import (
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"
)

// Entry is one certificate store entry, keyed by its server name.
// Entries are immutable; renewal replaces the whole entry inside a new
// snapshot.
type Entry struct {
	// ServerName is the lookup key: an exact host name or a
	// single-label wildcard form like "*.example.com", lowercase,
	// without a trailing dot.
	ServerName string

	// Certificate is the chain and private key presented for the name.
	// Unset for ACME-managed entries, whose material lives in the
	// ACME manager's cache.
	Certificate tls.Certificate

	// Leaf is the parsed end-entity certificate.
	Leaf *x509.Certificate

	// ACME marks the entry as managed by the ACME manager.
	ACME bool

	// ClientCAs, when non-nil, requires and verifies client
	// certificates against this pool for handshakes under this name.
	ClientCAs *x509.CertPool
}

// LoadEntry reads a PEM certificate chain and a PEM PKCS8 private key
// from disk and validates them against serverName: the files must
// parse, the key must match the leaf's public key, and the leaf's SAN
// list must cover the name.
func LoadEntry(serverName, certPath, keyPath string) (*Entry, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load the certificates [%s]: %w", certPath, err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load the certificate key [%s]: %w", keyPath, err)
	}
	return NewEntry(serverName, certPEM, keyPEM)
}

// NewEntry builds and validates an entry from in-memory PEM material.
func NewEntry(serverName string, certPEM, keyPEM []byte) (*Entry, error) {
	name := NormalizeName(serverName)

	chain, err := parseChain(certPEM)
	if err != nil {
		return nil, fmt.Errorf("certificate for %q: %w", name, err)
	}
	key, err := parsePKCS8Key(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("private key for %q: %w", name, err)
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("certificate for %q: failed to parse leaf: %w", name, err)
	}

	if err := keyMatchesLeaf(key, leaf); err != nil {
		return nil, fmt.Errorf("certificate for %q: %w", name, err)
	}
	if err := sanCovers(leaf, name); err != nil {
		return nil, fmt.Errorf("certificate for %q: %w", name, err)
	}

	return &Entry{
		ServerName: name,
		Certificate: tls.Certificate{
			Certificate: chain,
			PrivateKey:  key,
			Leaf:        leaf,
		},
		Leaf: leaf,
	}, nil
}

// LoadEntryUnchecked loads a pair without the SAN coverage check, for
// inspection tooling and the default certificate.
func LoadEntryUnchecked(certPath, keyPath string) (*Entry, error) {
	certPEM, err := readFileWrapped(certPath, "certificates")
	if err != nil {
		return nil, err
	}
	keyPEM, err := readFileWrapped(keyPath, "certificate key")
	if err != nil {
		return nil, err
	}

	chain, err := parseChain(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := parsePKCS8Key(keyPEM)
	if err != nil {
		return nil, err
	}
	leaf, err := parseLeafMatching(chain, key)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Certificate: tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf},
		Leaf:        leaf,
	}, nil
}

// NormalizeName lowercases a server name and trims the trailing dot.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// parseChain extracts all CERTIFICATE blocks from PEM data, leaf first.
func parseChain(pemData []byte) ([][]byte, error) {
	var chain [][]byte
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no CERTIFICATE blocks found")
	}
	return chain, nil
}

// parsePKCS8Key parses a PEM "PRIVATE KEY" (PKCS8) block. Legacy
// PKCS1/SEC1 encodings are rejected with a conversion hint since PKCS8
// is the only accepted private-key encoding.
func parsePKCS8Key(pemData []byte) (crypto.PrivateKey, error) {
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("no PRIVATE KEY block found")
		}
		switch block.Type {
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
			}
			return key, nil
		case "RSA PRIVATE KEY", "EC PRIVATE KEY":
			return nil, fmt.Errorf("%s is not supported; re-encode the key as PKCS8 (openssl pkcs8 -topk8 -nocrypt)", block.Type)
		}
	}
}

// keyMatchesLeaf verifies the private key belongs to the leaf's public
// key by comparing the PKIX encodings.
func keyMatchesLeaf(key crypto.PrivateKey, leaf *x509.Certificate) error {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return fmt.Errorf("private key type %T cannot sign", key)
	}
	keyPub, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return fmt.Errorf("failed to encode key public part: %w", err)
	}
	leafPub, err := x509.MarshalPKIXPublicKey(leaf.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to encode leaf public key: %w", err)
	}
	if !bytes.Equal(keyPub, leafPub) {
		return fmt.Errorf("private key does not match the leaf certificate")
	}
	return nil
}

// sanCovers verifies the leaf's SAN list covers serverName. A wildcard
// server name requires the identical wildcard SAN; a concrete name is
// checked with the standard host-name verification rules.
func sanCovers(leaf *x509.Certificate, serverName string) error {
	if strings.HasPrefix(serverName, "*.") {
		for _, san := range leaf.DNSNames {
			if NormalizeName(san) == serverName {
				return nil
			}
		}
		return fmt.Errorf("SAN list %v does not include wildcard %q", leaf.DNSNames, serverName)
	}
	if err := leaf.VerifyHostname(serverName); err != nil {
		return fmt.Errorf("SAN list does not cover %q: %w", serverName, err)
	}
	return nil
}

// readFileWrapped reads a file, labelling errors with what the file
// was expected to contain.
func readFileWrapped(path, what string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load the %s [%s]: %w", what, path, err)
	}
	return data, nil
}

// parseLeafMatching parses the first chain element and verifies the key
// belongs to it.
func parseLeafMatching(chain [][]byte, key crypto.PrivateKey) (*x509.Certificate, error) {
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse leaf: %w", err)
	}
	if err := keyMatchesLeaf(key, leaf); err != nil {
		return nil, err
	}
	return leaf, nil
}

// LoadClientCAPool reads a PEM CA bundle into a certificate pool.
func LoadClientCAPool(path string) (*x509.CertPool, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load the client CA bundle [%s]: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("no usable certificates in client CA bundle [%s]", path)
	}
	return pool, nil
}

// DaysUntilExpiry returns the whole days remaining before the entry's
// leaf certificate expires. ACME entries without a loaded leaf report
// a negative count and should be skipped by callers.
func (e *Entry) DaysUntilExpiry(now time.Time) int {
	if e.Leaf == nil {
		return -1
	}
	return int(e.Leaf.NotAfter.Sub(now).Hours() / 24)
}
