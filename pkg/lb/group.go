package lb

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"gatehouse-hq/gatehouse/pkg/config"
)

// Group is the ordered set of upstreams behind one route, plus its
// balancing policy and sticky-session parameters.
type Group struct {
	// Upstreams is the ordered upstream list from configuration.
	Upstreams []*Upstream

	// Policy is one of config.LBRoundRobin, LBRandom, LBSticky.
	Policy string

	// CookieName is the sticky affinity cookie name.
	CookieName string

	// CookieTTL is the affinity cookie Max-Age; zero means a session
	// cookie.
	CookieTTL time.Duration

	// rr is the round-robin cursor.
	rr atomic.Uint64
}

// NewGroup builds a group from a route configuration.
func NewGroup(route *config.RouteConfig) *Group {
	ups := make([]*Upstream, 0, len(route.Upstream))
	for _, u := range route.Upstream {
		ups = append(ups, NewUpstream(u.Location, u.TLS, u.ServerNameOverride))
	}
	return &Group{
		Upstreams:  ups,
		Policy:     route.LoadBalance,
		CookieName: route.StickyCookieName,
		CookieTTL:  time.Duration(route.StickyTTLSec) * time.Second,
	}
}

// Selection is the outcome of a pick.
type Selection struct {
	// Upstream is the chosen location; nil when the group is empty.
	Upstream *Upstream

	// AssignCookie is non-empty when a sticky cookie must be set on
	// the response (absent or stale inbound cookie).
	AssignCookie string
}

// Pick selects an upstream. stickyID is the inbound affinity cookie
// value, empty when absent or when the policy is not sticky.
func (g *Group) Pick(stickyID string) Selection {
	candidates := g.candidates(nil)
	if len(candidates) == 0 {
		return Selection{}
	}

	if g.Policy == config.LBSticky && stickyID != "" {
		for _, u := range candidates {
			if u.id == stickyID {
				return Selection{Upstream: u}
			}
		}
		// Cookie points at a demoted or removed upstream; fall
		// through and re-assign.
	}

	var chosen *Upstream
	switch g.Policy {
	case config.LBRandom:
		chosen = candidates[rand.IntN(len(candidates))]
	default:
		chosen = candidates[int(g.rr.Add(1)-1)%len(candidates)]
	}

	if g.Policy == config.LBSticky {
		return Selection{Upstream: chosen, AssignCookie: chosen.id}
	}
	return Selection{Upstream: chosen}
}

// NextAfter returns a retry candidate distinct from the already-failed
// upstreams, preferring healthy ones. It returns nil when every
// upstream has been tried.
func (g *Group) NextAfter(failed map[*Upstream]bool) *Upstream {
	if healthy := g.candidates(failed); len(healthy) > 0 {
		return healthy[int(g.rr.Add(1)-1)%len(healthy)]
	}
	for _, u := range g.Upstreams {
		if !failed[u] {
			return u
		}
	}
	return nil
}

// candidates returns the healthy upstreams not in skip. When every
// upstream is demoted, all non-skipped upstreams are returned so a
// fully-demoted group is retried instead of black-holed.
func (g *Group) candidates(skip map[*Upstream]bool) []*Upstream {
	healthy := make([]*Upstream, 0, len(g.Upstreams))
	for _, u := range g.Upstreams {
		if skip[u] {
			continue
		}
		if u.Healthy() {
			healthy = append(healthy, u)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}

	all := make([]*Upstream, 0, len(g.Upstreams))
	for _, u := range g.Upstreams {
		if !skip[u] {
			all = append(all, u)
		}
	}
	return all
}

// Size returns the number of upstreams in the group.
func (g *Group) Size() int { return len(g.Upstreams) }
