package lb

import (
	"testing"
	"time"

	"gatehouse-hq/gatehouse/pkg/config"
)

func newTestGroup(policy string, locations ...string) *Group {
	rc := &config.RouteConfig{LoadBalance: policy}
	for _, loc := range locations {
		rc.Upstream = append(rc.Upstream, config.UpstreamConfig{Location: loc})
	}
	if policy == config.LBSticky {
		rc.StickyCookieName = config.DefaultStickyCookieName
	}
	return NewGroup(rc)
}

func TestRoundRobin_Alternates(t *testing.T) {
	g := newTestGroup(config.LBRoundRobin, "a:1", "b:1")

	var picks []string
	for i := 0; i < 4; i++ {
		sel := g.Pick("")
		if sel.Upstream == nil {
			t.Fatal("Pick() returned nil upstream")
		}
		picks = append(picks, sel.Upstream.Location)
	}

	// Strict alternation, regardless of the starting choice.
	for i := 2; i < len(picks); i++ {
		if picks[i] != picks[i-2] {
			t.Fatalf("picks not alternating: %v", picks)
		}
	}
	if picks[0] == picks[1] {
		t.Fatalf("picks not alternating: %v", picks)
	}
}

func TestRoundRobin_FairShare(t *testing.T) {
	g := newTestGroup(config.LBRoundRobin, "a:1", "b:1", "c:1")

	counts := make(map[string]int)
	const k = 99
	for i := 0; i < k; i++ {
		counts[g.Pick("").Upstream.Location]++
	}
	for loc, n := range counts {
		if n != k/3 {
			t.Errorf("upstream %s picked %d times, want %d", loc, n, k/3)
		}
	}
}

func TestRandom_StaysWithinGroup(t *testing.T) {
	g := newTestGroup(config.LBRandom, "a:1", "b:1")

	for i := 0; i < 50; i++ {
		sel := g.Pick("")
		if loc := sel.Upstream.Location; loc != "a:1" && loc != "b:1" {
			t.Fatalf("picked unknown upstream %q", loc)
		}
	}
}

func TestSticky_AssignsAndHonorsCookie(t *testing.T) {
	g := newTestGroup(config.LBSticky, "a:1", "b:1", "c:1")

	first := g.Pick("")
	if first.AssignCookie == "" {
		t.Fatal("expected a cookie assignment on first pick")
	}
	if first.AssignCookie != first.Upstream.ID() {
		t.Errorf("cookie %q does not match upstream id %q", first.AssignCookie, first.Upstream.ID())
	}

	for i := 0; i < 10; i++ {
		again := g.Pick(first.AssignCookie)
		if again.Upstream != first.Upstream {
			t.Fatalf("sticky pick moved from %s to %s", first.Upstream.Location, again.Upstream.Location)
		}
		if again.AssignCookie != "" {
			t.Error("no reassignment expected while the upstream is healthy")
		}
	}
}

func TestSticky_ReassignsWhenUpstreamDemoted(t *testing.T) {
	g := newTestGroup(config.LBSticky, "a:1", "b:1")

	first := g.Pick("")
	demote(first.Upstream)

	moved := g.Pick(first.AssignCookie)
	if moved.Upstream == first.Upstream {
		t.Fatal("expected reassignment away from demoted upstream")
	}
	if moved.AssignCookie == "" {
		t.Error("expected a fresh cookie assignment")
	}
}

func TestSticky_UnknownCookieFallsThrough(t *testing.T) {
	g := newTestGroup(config.LBSticky, "a:1", "b:1")

	sel := g.Pick("deadbeefdeadbeef")
	if sel.Upstream == nil {
		t.Fatal("expected a pick despite stale cookie")
	}
	if sel.AssignCookie == "" {
		t.Error("stale cookie should be replaced")
	}
}

// demote drives an upstream over the failure threshold.
func demote(u *Upstream) {
	for i := 0; i < failureThreshold; i++ {
		u.ReportFailure()
	}
}

func TestCircuit_DemotesAfterThreshold(t *testing.T) {
	u := NewUpstream("a:1", false, "")

	u.ReportFailure()
	u.ReportFailure()
	if !u.Healthy() {
		t.Fatalf("demoted after %d failures, threshold is %d", 2, failureThreshold)
	}
	u.ReportFailure()
	if u.Healthy() {
		t.Fatal("expected demotion after reaching the threshold")
	}
}

func TestCircuit_SuccessCloses(t *testing.T) {
	u := NewUpstream("a:1", false, "")
	demote(u)
	u.ReportSuccess()
	if !u.Healthy() {
		t.Fatal("success should close the circuit")
	}
}

func TestCircuit_WindowResets(t *testing.T) {
	var c circuit
	base := time.Now()

	c.reportFailure(base)
	c.reportFailure(base.Add(failureWindow + time.Second))
	c.reportFailure(base.Add(failureWindow + 2*time.Second))
	if !c.healthy(base.Add(failureWindow + 3*time.Second)) {
		t.Fatal("failures outside the window must not accumulate")
	}
}

func TestGroup_SkipsDemoted(t *testing.T) {
	g := newTestGroup(config.LBRoundRobin, "a:1", "b:1")
	demote(g.Upstreams[0])

	for i := 0; i < 5; i++ {
		if got := g.Pick("").Upstream.Location; got != "b:1" {
			t.Fatalf("picked demoted upstream %q", got)
		}
	}
}

func TestGroup_AllDemotedStillServes(t *testing.T) {
	g := newTestGroup(config.LBRoundRobin, "a:1", "b:1")
	demote(g.Upstreams[0])
	demote(g.Upstreams[1])

	if g.Pick("").Upstream == nil {
		t.Fatal("a fully demoted group must still return a candidate")
	}
}

func TestNextAfter_SkipsFailed(t *testing.T) {
	g := newTestGroup(config.LBRoundRobin, "a:1", "b:1")

	failed := map[*Upstream]bool{g.Upstreams[0]: true}
	next := g.NextAfter(failed)
	if next != g.Upstreams[1] {
		t.Fatalf("NextAfter picked %v", next)
	}

	failed[g.Upstreams[1]] = true
	if g.NextAfter(failed) != nil {
		t.Fatal("expected nil when every upstream already failed")
	}
}
