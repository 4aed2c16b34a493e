// Package lb implements per-route upstream selection.
//
// A Group is the ordered set of upstream locations behind one route,
// plus its balancing policy: round-robin (default), random, or
// sticky-cookie. Selection state is a single atomic counter per group;
// there is no group-wide lock on the hot path, only the short per-upstream
// mutex guarding each health circuit.
//
// Each upstream carries a passive-health circuit: consecutive transport
// failures inside a sliding window demote it for an exponentially
// growing cool-off, after which it is probed again. Demoted upstreams
// are skipped during selection unless every upstream in the group is
// demoted, in which case all of them become candidates again so a
// fully-demoted group cannot black-hole traffic.
package lb
