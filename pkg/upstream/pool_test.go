package upstream

import (
	"net/http"
	"testing"

	"golang.org/x/net/http2"

	"gatehouse-hq/gatehouse/pkg/lb"
)

func TestPool_ReusesClientPerKey(t *testing.T) {
	p := NewPool(Options{})
	up := lb.NewUpstream("backend.local:8080", false, "")

	c1 := p.Client(up, "")
	c2 := p.Client(up, "")
	if c1 != c2 {
		t.Error("same key must reuse the client")
	}
}

func TestPool_SeparatesTenantsBySNI(t *testing.T) {
	p := NewPool(Options{})
	a := lb.NewUpstream("shared.local:8443", true, "tenant-a.internal")
	b := lb.NewUpstream("shared.local:8443", true, "tenant-b.internal")

	if p.Client(a, "") == p.Client(b, "") {
		t.Error("same address with different backend SNI must not share a client")
	}
}

func TestPool_SeparatesALPNPreferences(t *testing.T) {
	p := NewPool(Options{})
	up := lb.NewUpstream("backend.local:8443", true, "")

	if p.Client(up, "h2") == p.Client(up, "http/1.1") {
		t.Error("different ALPN preferences must not share a client")
	}
}

func TestPool_H2CTransport(t *testing.T) {
	p := NewPool(Options{})
	up := lb.NewUpstream("backend.local:8080", false, "")

	c := p.Client(up, "h2")
	if _, ok := c.Transport.(*http2.Transport); !ok {
		t.Fatalf("h2 over plaintext must use the h2 transport, got %T", c.Transport)
	}
}

func TestPool_TLSTransportServerName(t *testing.T) {
	p := NewPool(Options{})
	up := lb.NewUpstream("backend.local:8443", true, "internal.name")

	c := p.Client(up, "")
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport is %T", c.Transport)
	}
	if tr.TLSClientConfig.ServerName != "internal.name" {
		t.Errorf("ServerName = %q", tr.TLSClientConfig.ServerName)
	}
}

func TestPool_RedirectsNotFollowed(t *testing.T) {
	p := NewPool(Options{})
	up := lb.NewUpstream("backend.local:8080", false, "")

	c := p.Client(up, "")
	if err := c.CheckRedirect(nil, nil); err != http.ErrUseLastResponse {
		t.Errorf("CheckRedirect = %v, want ErrUseLastResponse", err)
	}
}
