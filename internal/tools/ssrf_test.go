package tools

import (
	"context"
	"net"
	"strings"
	"testing"
)

func TestIsBlockedIP_PrivateRanges(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want bool
	}{
		// 10.0.0.0/8
		{"10.0.0.1", "10.0.0.1", true},
		{"10.255.255.255", "10.255.255.255", true},
		// 172.16.0.0/12
		{"172.16.0.5", "172.16.0.5", true},
		{"172.31.255.255", "172.31.255.255", true},
		// 192.168.0.0/16
		{"192.168.1.1", "192.168.1.1", true},
		// loopback
		{"127.0.0.1", "127.0.0.1", true},
		{"127.8.8.8", "127.8.8.8", true},
		{"IPv6 loopback", "::1", true},
		// link-local
		{"169.254.1.1", "169.254.1.1", true},
		{"IPv6 link-local", "fe80::1", true},
		// IPv6 unique local
		{"fc00::1", "fc00::1", true},
		// public
		{"93.184.216.34", "93.184.216.34", false},
		{"8.8.8.8", "8.8.8.8", false},
		{"IPv6 public", "2606:4700::6810:84e5", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ip := net.ParseIP(tc.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP %q", tc.ip)
			}
			if got := isBlockedIP(ip); got != tc.want {
				t.Fatalf("isBlockedIP(%s) = %v, want %v", tc.ip, got, tc.want)
			}
		})
	}
}

func TestGuardValidate_BlockedLiteralAddresses(t *testing.T) {
	guard := NewGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"loopback", "http://127.0.0.1/admin"},
		{"loopback with port", "http://127.0.0.1:8080/"},
		{"rfc1918 10", "http://10.1.2.3/"},
		{"rfc1918 172", "https://172.16.0.5/secrets"},
		{"rfc1918 192", "http://192.168.1.1/router"},
		{"metadata endpoint", "http://169.254.169.254/latest/meta-data/"},
		{"ipv6 loopback", "http://[::1]/"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := guard.Validate(context.Background(), tc.url)
			if v.Allowed() {
				t.Fatalf("Validate(%s) allowed, want blocked", tc.url)
			}
			if v.Kind != VerdictBlockedAddress {
				t.Fatalf("Validate(%s) kind = %v, want VerdictBlockedAddress", tc.url, v.Kind)
			}
			if !strings.Contains(v.Reason, "private/internal address") {
				t.Fatalf("Validate(%s) reason = %q, want private/internal address message", tc.url, v.Reason)
			}
		})
	}
}

func TestGuardValidate_SchemeRejectedBeforeDNS(t *testing.T) {
	// A resolver that fails the test if consulted proves scheme checks
	// run before any resolution.
	guard := NewGuard(WithResolver(&net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			t.Fatal("resolver consulted for non-http scheme")
			return nil, nil
		},
	}))

	tests := []struct {
		name string
		url  string
	}{
		{"file", "file:///etc/passwd"},
		{"ftp", "ftp://example.com/file"},
		{"gopher", "gopher://example.com/"},
		{"no scheme", "example.com/page"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := guard.Validate(context.Background(), tc.url)
			if v.Allowed() {
				t.Fatalf("Validate(%s) allowed, want blocked", tc.url)
			}
			if v.Kind != VerdictBadScheme {
				t.Fatalf("Validate(%s) kind = %v, want VerdictBadScheme", tc.url, v.Kind)
			}
		})
	}
}

func TestGuardValidate_EmptyHostname(t *testing.T) {
	guard := NewGuard()
	v := guard.Validate(context.Background(), "http://")
	if v.Allowed() {
		t.Fatal("Validate(http://) allowed, want blocked")
	}
	if v.Kind != VerdictNoHostname {
		t.Fatalf("kind = %v, want VerdictNoHostname", v.Kind)
	}
}

func TestGuardValidate_PublicLiteralAllowed(t *testing.T) {
	guard := NewGuard()
	v := guard.Validate(context.Background(), "https://93.184.216.34/page")
	if !v.Allowed() {
		t.Fatalf("Validate allowed = false, reason %q", v.Reason)
	}
	if len(v.Addrs) != 1 || v.Addrs[0].String() != "93.184.216.34" {
		t.Fatalf("Addrs = %v, want [93.184.216.34]", v.Addrs)
	}
}

func TestGuardValidate_ResolveFailure(t *testing.T) {
	guard := NewGuard(WithResolver(&net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, &net.DNSError{Err: "no such host", Name: address, IsNotFound: true}
		},
	}))

	v := guard.Validate(context.Background(), "http://definitely-not-a-real-host.invalid/")
	if v.Allowed() {
		t.Fatal("Validate allowed, want blocked")
	}
	if v.Kind != VerdictResolveFailed {
		t.Fatalf("kind = %v, want VerdictResolveFailed", v.Kind)
	}
}

func TestGuardValidate_AllowPrivate(t *testing.T) {
	guard := NewGuard(WithAllowPrivate())
	v := guard.Validate(context.Background(), "http://127.0.0.1:9999/")
	if !v.Allowed() {
		t.Fatalf("Validate with AllowPrivate blocked: %q", v.Reason)
	}
}

func TestGuardDialContext_BlocksPrivateTarget(t *testing.T) {
	guard := NewGuard()
	_, err := guard.DialContext(context.Background(), "tcp", "127.0.0.1:80")
	if err == nil {
		t.Fatal("DialContext to loopback succeeded, want error")
	}
	if !strings.Contains(err.Error(), "private network access denied") {
		t.Fatalf("error = %v, want private network access denied", err)
	}
}
