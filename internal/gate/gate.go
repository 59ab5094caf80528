package gate

import "regexp"

// ipv4Pattern matches the first dotted-quad substring of a remote address.
// Remote addresses arrive as "ip:port" and may carry a proxy prefix, so the
// address is extracted by pattern rather than parsed as a whole.
var ipv4Pattern = regexp.MustCompile(`(?:[0-9]{1,3}\.){3}[0-9]{1,3}`)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate validates that bridge requests originate from the single trusted
// game-server address. It is stateless.
type Gate struct {
	trustedIP string
}

// New creates a gate allowing only the given IPv4 address.
func New(trustedIP string) *Gate {
	return &Gate{trustedIP: trustedIP}
}

// Check extracts the first IPv4-shaped substring of remote and compares it
// to the trusted address. Anything else, including input with no IPv4
// substring, denies.
func (g *Gate) Check(remote string) Decision {
	ip := ipv4Pattern.FindString(remote)
	if ip == "" {
		return Decision{Allowed: false, Reason: "no IPv4 address in remote addr"}
	}
	if ip != g.trustedIP {
		return Decision{Allowed: false, Reason: "address not trusted"}
	}
	return Decision{Allowed: true}
}
