package lb

import (
	"fmt"
	"hash/fnv"
	"net"
	"sync"
	"time"
)

// Upstream is one backend location within a group.
type Upstream struct {
	// Location is the backend authority (host:port).
	Location string

	// TLS selects https towards the backend.
	TLS bool

	// ServerNameOverride replaces the SNI for the backend handshake.
	// Empty means the host part of Location.
	ServerNameOverride string

	// id is the stable opaque identifier used as the sticky cookie
	// value.
	id string

	health circuit
}

// NewUpstream builds an upstream for a location.
func NewUpstream(location string, tls bool, serverNameOverride string) *Upstream {
	h := fnv.New64a()
	h.Write([]byte(location))
	return &Upstream{
		Location:           location,
		TLS:                tls,
		ServerNameOverride: serverNameOverride,
		id:                 fmt.Sprintf("%016x", h.Sum64()),
	}
}

// ID returns the upstream's stable opaque identifier.
func (u *Upstream) ID() string { return u.id }

// Scheme returns the URL scheme for dispatching to this upstream.
func (u *Upstream) Scheme() string {
	if u.TLS {
		return "https"
	}
	return "http"
}

// TLSServerName returns the server name for the backend handshake.
func (u *Upstream) TLSServerName() string {
	if u.ServerNameOverride != "" {
		return u.ServerNameOverride
	}
	host, _, err := net.SplitHostPort(u.Location)
	if err != nil {
		return u.Location
	}
	return host
}

// ReportSuccess records a successful exchange and closes the circuit.
func (u *Upstream) ReportSuccess() { u.health.reportSuccess() }

// ReportFailure records a transport-level failure. Enough failures
// inside the window demote the upstream for a cool-off period.
func (u *Upstream) ReportFailure() { u.health.reportFailure(time.Now()) }

// Healthy reports whether the upstream is currently selectable.
func (u *Upstream) Healthy() bool { return u.health.healthy(time.Now()) }

// Passive-health tuning. Failures are counted inside a sliding window;
// the cool-off doubles with every demotion up to the cap.
const (
	failureThreshold = 3
	failureWindow    = 30 * time.Second
	baseCooloff      = 5 * time.Second
	maxCooloff       = 5 * time.Minute
)

// circuit is the per-upstream failure tracker.
type circuit struct {
	mu           sync.Mutex
	failures     int
	firstFailure time.Time
	demotedUntil time.Time
	demotions    int
}

func (c *circuit) reportSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.demotions = 0
	c.demotedUntil = time.Time{}
	c.mu.Unlock()
}

func (c *circuit) reportFailure(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failures == 0 || now.Sub(c.firstFailure) > failureWindow {
		c.failures = 1
		c.firstFailure = now
		return
	}
	c.failures++
	if c.failures < failureThreshold {
		return
	}

	cooloff := baseCooloff << uint(c.demotions)
	if cooloff > maxCooloff {
		cooloff = maxCooloff
	}
	c.demotions++
	c.demotedUntil = now.Add(cooloff)
	c.failures = 0
}

func (c *circuit) healthy(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.demotedUntil.IsZero() || now.After(c.demotedUntil)
}
