package gate

import "testing"

func TestCheck(t *testing.T) {
	g := New("203.0.113.5")

	cases := []struct {
		name   string
		remote string
		allow  bool
	}{
		{"exact match", "203.0.113.5", true},
		{"match with port", "203.0.113.5:51234", true},
		{"proxy-prefixed match", "::ffff:203.0.113.5", true},
		{"different address", "203.0.113.6", false},
		{"prefix of trusted", "203.0.113.50:1234", false},
		{"empty", "", false},
		{"garbage", "not-an-address", false},
		{"ipv6 only", "[::1]:8080", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := g.Check(c.remote)
			if d.Allowed != c.allow {
				t.Fatalf("Check(%q).Allowed = %v, want %v (reason: %s)", c.remote, d.Allowed, c.allow, d.Reason)
			}
		})
	}
}

func TestDenyCarriesReason(t *testing.T) {
	g := New("203.0.113.5")
	if d := g.Check("10.0.0.1"); d.Allowed || d.Reason == "" {
		t.Fatalf("expected deny with reason, got %+v", d)
	}
}
