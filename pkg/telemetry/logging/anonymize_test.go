package logging

import "testing"

func TestAnonymizer_Client(t *testing.T) {
	tests := []struct {
		name   string
		prefix int
		addr   string
		want   string
	}{
		{name: "disabled keeps host", prefix: 0, addr: "192.0.2.55:4321", want: "192.0.2.55"},
		{name: "ipv4 /24", prefix: 24, addr: "192.0.2.55:4321", want: "192.0.2.0/24"},
		{name: "ipv4 /16", prefix: 16, addr: "192.0.2.55:4321", want: "192.0.0.0/16"},
		{name: "ipv4 without port", prefix: 24, addr: "198.51.100.200", want: "198.51.100.0/24"},
		{name: "ipv6", prefix: 24, addr: "[2001:db8:1:2:3:4:5:6]:443", want: "2001:db8:1::/56"},
		{name: "unparseable passthrough", prefix: 24, addr: "not-an-ip", want: "not-an-ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnonymizer(tt.prefix)
			if got := a.Client(tt.addr); got != tt.want {
				t.Errorf("Client(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, bad := range []string{"loud", "TRACE"} {
		if _, err := ParseLevel(bad); err == nil {
			t.Errorf("ParseLevel(%q) should fail", bad)
		}
	}
	for _, good := range []string{"", "debug", "info", "warn", "error", "WARNING"} {
		if _, err := ParseLevel(good); err != nil {
			t.Errorf("ParseLevel(%q) error: %v", good, err)
		}
	}
}
