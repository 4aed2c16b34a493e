package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cacheRequest(method string) *http.Request {
	return httptest.NewRequest(method, "http://app1.example.com/x", nil)
}

func TestCacheable(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		status  int
		cc      string
		auth    bool
		wantTTL time.Duration
	}{
		{name: "get with max-age", method: "GET", status: 200, cc: "max-age=60", wantTTL: time.Minute},
		{name: "head with max-age", method: "HEAD", status: 200, cc: "public, max-age=30", wantTTL: 30 * time.Second},
		{name: "post", method: "POST", status: 200, cc: "max-age=60"},
		{name: "non-200", method: "GET", status: 206, cc: "max-age=60"},
		{name: "no cache-control", method: "GET", status: 200, cc: ""},
		{name: "no-store", method: "GET", status: 200, cc: "no-store"},
		{name: "private", method: "GET", status: 200, cc: "private, max-age=60"},
		{name: "zero max-age", method: "GET", status: 200, cc: "max-age=0"},
		{name: "authorized request", method: "GET", status: 200, cc: "max-age=60", auth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cacheRequest(tt.method)
			if tt.auth {
				r.Header.Set("Authorization", "Bearer x")
			}
			h := http.Header{}
			if tt.cc != "" {
				h.Set("Cache-Control", tt.cc)
			}
			if got := Cacheable(r, tt.status, h); got != tt.wantTTL {
				t.Errorf("Cacheable() = %v, want %v", got, tt.wantTTL)
			}
		})
	}
}

func TestCache_GetPutExpiry(t *testing.T) {
	c := New(4, 1024)
	key := Key("app1", cacheRequest("GET"))

	if _, ok := c.Get(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Put(key, Entry{StatusCode: 200, Body: []byte("hello"), Expiry: time.Now().Add(time.Minute)})
	entry, ok := c.Get(key)
	if !ok || string(entry.Body) != "hello" {
		t.Fatalf("Get() = (%v, %v)", entry, ok)
	}

	c.Put(key, Entry{StatusCode: 200, Body: []byte("stale"), Expiry: time.Now().Add(-time.Second)})
	if _, ok := c.Get(key); ok {
		t.Error("expired entry served")
	}
}

func TestCache_EvictsLRU(t *testing.T) {
	c := New(2, 1024)
	expiry := time.Now().Add(time.Minute)

	c.Put("a", Entry{Body: []byte("a"), Expiry: expiry})
	c.Put("b", Entry{Body: []byte("b"), Expiry: expiry})
	c.Get("a") // refresh a
	c.Put("c", Entry{Body: []byte("c"), Expiry: expiry})

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("new entry missing")
	}
}

func TestCache_OversizeBodySkipped(t *testing.T) {
	c := New(4, 4)
	c.Put("big", Entry{Body: []byte("too large"), Expiry: time.Now().Add(time.Minute)})
	if _, ok := c.Get("big"); ok {
		t.Error("oversize entry stored")
	}
}

func TestKey_SeparatesTenants(t *testing.T) {
	r := cacheRequest("GET")
	if Key("app1", r) == Key("app2", r) {
		t.Error("cache keys must differ per application")
	}
}
