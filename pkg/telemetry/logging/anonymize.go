package logging

import (
	"net"
	"net/netip"
)

// Anonymizer truncates client IP addresses to a subnet before logging.
// A zero prefix disables truncation and addresses are logged verbatim.
type Anonymizer struct {
	// v4Prefix is the retained IPv4 prefix length (1-32).
	v4Prefix int

	// v6Prefix is the retained IPv6 prefix length, derived as
	// v4Prefix+32 capped at 64.
	v6Prefix int
}

// NewAnonymizer creates an anonymizer keeping v4Prefix bits of IPv4
// client addresses. v4Prefix 0 returns a pass-through anonymizer.
func NewAnonymizer(v4Prefix int) *Anonymizer {
	v6 := v4Prefix + 32
	if v6 > 64 {
		v6 = 64
	}
	return &Anonymizer{v4Prefix: v4Prefix, v6Prefix: v6}
}

// Client maps a client address (ip or ip:port) to its loggable form.
// The port is always dropped; the host is truncated to the configured
// subnet. Unparseable input is returned unchanged.
func (a *Anonymizer) Client(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if a == nil || a.v4Prefix == 0 {
		return host
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}

	bits := a.v6Prefix
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = a.v4Prefix
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return host
	}
	return prefix.String()
}
