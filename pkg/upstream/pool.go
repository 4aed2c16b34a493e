package upstream

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"gatehouse-hq/gatehouse/pkg/lb"
)

// Key identifies one pooled client.
type Key struct {
	// Scheme is "http" or "https".
	Scheme string

	// Authority is the backend host:port.
	Authority string

	// ServerName is the SNI used for TLS backends; empty for
	// plaintext.
	ServerName string

	// ALPN is the pinned protocol preference: "", "http/1.1", "h2".
	ALPN string
}

// Options tunes every pooled client.
type Options struct {
	// ConnectTimeout bounds dialing a backend.
	ConnectTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers
	// after the request has been written.
	ResponseHeaderTimeout time.Duration

	// IdleConnTimeout closes idle pooled connections.
	IdleConnTimeout time.Duration

	// MaxIdlePerKey caps idle connections per pooled client.
	MaxIdlePerKey int
}

// Pool is the upstream client pool. Clients are created on first use
// per key and kept for the lifetime of the pool.
type Pool struct {
	opts Options

	mu      sync.RWMutex
	clients map[Key]*http.Client
}

// NewPool creates an empty pool.
func NewPool(opts Options) *Pool {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.IdleConnTimeout == 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}
	if opts.MaxIdlePerKey == 0 {
		opts.MaxIdlePerKey = 32
	}
	return &Pool{
		opts:    opts,
		clients: make(map[Key]*http.Client),
	}
}

// Client returns the pooled client for an upstream location under the
// given ALPN preference.
func (p *Pool) Client(up *lb.Upstream, alpn string) *http.Client {
	key := Key{
		Scheme:    up.Scheme(),
		Authority: up.Location,
		ALPN:      alpn,
	}
	if up.TLS {
		key.ServerName = up.TLSServerName()
	}

	p.mu.RLock()
	client, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return client
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok = p.clients[key]; ok {
		return client
	}
	client = &http.Client{
		Transport: p.transport(key),
		// Redirects are passed through to the client untouched.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	p.clients[key] = client
	return client
}

// transport builds the transport for one key.
func (p *Pool) transport(key Key) http.RoundTripper {
	dialer := &net.Dialer{Timeout: p.opts.ConnectTimeout}

	// Plaintext HTTP/2 requires the dedicated h2 transport since the
	// standard one only negotiates h2 via ALPN.
	if key.ALPN == "h2" && key.Scheme == "http" {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			IdleConnTimeout: p.opts.IdleConnTimeout,
		}
	}

	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   p.opts.MaxIdlePerKey,
		IdleConnTimeout:       p.opts.IdleConnTimeout,
		ResponseHeaderTimeout: p.opts.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     key.ALPN != "http/1.1",
	}
	if key.Scheme == "https" {
		tr.TLSClientConfig = &tls.Config{
			ServerName: key.ServerName,
			MinVersion: tls.VersionTLS12,
		}
		if key.ALPN == "h2" {
			tr.TLSClientConfig.NextProtos = []string{"h2"}
		} else if key.ALPN == "http/1.1" {
			tr.TLSClientConfig.NextProtos = []string{"http/1.1"}
		}
	}
	return tr
}

// DialRaw opens a raw connection to the upstream for upgraded
// (WebSocket) exchanges, performing the TLS handshake when the
// location requires it. Upgraded connections bypass the pool.
func (p *Pool) DialRaw(ctx context.Context, up *lb.Upstream) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: p.opts.ConnectTimeout}
	if !up.TLS {
		return dialer.DialContext(ctx, "tcp", up.Location)
	}
	td := &tls.Dialer{
		NetDialer: dialer,
		Config: &tls.Config{
			ServerName: up.TLSServerName(),
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"http/1.1"},
		},
	}
	return td.DialContext(ctx, "tcp", up.Location)
}

// CloseIdle drops idle pooled connections across every client.
func (p *Pool) CloseIdle() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		if tr, ok := c.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
		}
	}
}
