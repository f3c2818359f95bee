package tools

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// VerdictKind classifies the outcome of an SSRF validation.
type VerdictKind int

const (
	VerdictAllowed VerdictKind = iota
	VerdictBadScheme
	VerdictNoHostname
	VerdictResolveFailed
	VerdictBlockedAddress
)

// Verdict is the result of validating one outbound URL. Reason is a
// descriptive, agent-facing string suitable for returning as a tool result.
type Verdict struct {
	Kind   VerdictKind
	Reason string
	Host   string
	// Addrs holds every resolved address when the verdict is allowed.
	Addrs []net.IP
}

// Allowed reports whether the fetch may proceed.
func (v Verdict) Allowed() bool { return v.Kind == VerdictAllowed }

// blockedNetworks covers loopback, RFC 1918 private ranges, link-local, and
// their IPv6 equivalents.
var blockedNetworks = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("fc00::/7"),
	mustParseCIDR("fe80::/10"),
}

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR: %s", s))
	}
	return n
}

// isBlockedIP checks an address against the blocked ranges.
func isBlockedIP(ip net.IP) bool {
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// Guard validates candidate URLs and resolved addresses before any outbound
// fetch. Verdicts are computed fresh per attempt and never cached, since a
// hostname can re-resolve between calls.
type Guard struct {
	resolver *net.Resolver
	// allowPrivate disables the address blocklist. Meant for tests and
	// closed development environments, never production.
	allowPrivate bool
	dialTimeout  time.Duration
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithAllowPrivate disables the private-range blocklist.
func WithAllowPrivate() GuardOption {
	return func(g *Guard) { g.allowPrivate = true }
}

// WithResolver sets a custom DNS resolver.
func WithResolver(r *net.Resolver) GuardOption {
	return func(g *Guard) { g.resolver = r }
}

// NewGuard creates a Guard with the default resolver.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		resolver:    net.DefaultResolver,
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate checks a candidate URL's scheme and every resolved address,
// short-circuiting on the first failure. Non-http(s) schemes are rejected
// before any DNS resolution is attempted.
func (g *Guard) Validate(ctx context.Context, rawURL string) Verdict {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Verdict{Kind: VerdictBadScheme, Reason: fmt.Sprintf("Blocked: could not parse URL: %v.", err)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Verdict{Kind: VerdictBadScheme, Reason: fmt.Sprintf("Blocked: URL scheme %q is not allowed. Use http or https.", parsed.Scheme)}
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return Verdict{Kind: VerdictNoHostname, Reason: "Blocked: could not parse hostname from URL."}
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		return Verdict{Kind: VerdictResolveFailed, Host: hostname, Reason: fmt.Sprintf("Blocked: could not resolve hostname %q.", hostname)}
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if !g.allowPrivate && isBlockedIP(a.IP) {
			return Verdict{
				Kind:   VerdictBlockedAddress,
				Host:   hostname,
				Reason: fmt.Sprintf("Blocked: URL resolves to a private/internal address (%s).", a.IP),
			}
		}
		ips = append(ips, a.IP)
	}

	return Verdict{Kind: VerdictAllowed, Host: hostname, Addrs: ips}
}

// DialContext resolves and validates the target at connection time, then
// connects to the exact address that passed validation. Running the check
// inside the dial closes the window between validation and connection that
// a DNS-rebinding attack would need, and covers every redirect hop.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("ssrf: DNS resolution failed for %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("ssrf: no addresses for %q", host)
	}

	if !g.allowPrivate {
		for _, a := range addrs {
			if isBlockedIP(a.IP) {
				return nil, fmt.Errorf("ssrf: private network access denied for %s (%s)", host, a.IP)
			}
		}
	}

	dialer := &net.Dialer{Timeout: g.dialTimeout}
	return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].IP.String(), port))
}

// Transport returns an http.Transport whose dials go through the guard.
func (g *Guard) Transport() *http.Transport {
	return &http.Transport{DialContext: g.DialContext}
}
