// Package security implements the gateway's request hardening: SSRF URL
// validation and security response headers.
package security

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/metamcp/metamcp/pkg/errors"
	"github.com/metamcp/metamcp/pkg/logger"
)

// resolveTimeout bounds the DNS lookup during URL validation.
const resolveTimeout = 5 * time.Second

// blockedHostnames are denied regardless of what they resolve to.
var blockedHostnames = []string{
	"localhost",
	"localhost.localdomain",
	"metadata.google.internal",
	"metadata.goog",
	"kubernetes.default",
	"kubernetes.default.svc",
	"host.docker.internal",
}

// blockedHostnameSuffixes deny whole private naming zones.
var blockedHostnameSuffixes = []string{
	".local",
	".internal",
}

// ValidateURL rejects URLs that could be used to reach internal
// infrastructure. It checks the scheme, the hostname against a denylist,
// literal IPs against the blocked ranges, and finally resolves the
// hostname and checks each address.
func ValidateURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(errors.KindSecurityViolation, "invalid URL", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf(errors.KindSecurityViolation, "URL scheme %q is not allowed", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New(errors.KindSecurityViolation, "URL has no host")
	}

	if hostnameBlocked(host) {
		return errors.Newf(errors.KindSecurityViolation, "host %q is not allowed", host)
	}

	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if blockedAddr(addr) {
			return errors.Newf(errors.KindSecurityViolation, "IP address %s is not allowed", addr)
		}
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupNetIP(resolveCtx, "ip", host)
	if err != nil {
		// The URL may point at a host that is only resolvable later
		// (e.g. inside a compose network). Allow it with a warning.
		logger.Warnw("could not resolve host during URL validation", "host", host, "error", err)
		return nil
	}
	for _, addr := range addrs {
		if blockedAddr(addr.Unmap()) {
			return errors.Newf(errors.KindSecurityViolation,
				"host %q resolves to blocked address %s", host, addr)
		}
	}
	return nil
}

func hostnameBlocked(host string) bool {
	for _, blocked := range blockedHostnames {
		if host == blocked {
			return true
		}
	}
	for _, suffix := range blockedHostnameSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

var blockedV4Prefixes = mustPrefixes(
	"0.0.0.0/8",       // unspecified
	"10.0.0.0/8",      // private
	"100.64.0.0/10",   // CGNAT
	"127.0.0.0/8",     // loopback
	"169.254.0.0/16",  // link-local, incl. cloud metadata
	"172.16.0.0/12",   // private
	"192.0.0.0/24",    // IETF protocol assignments
	"192.0.2.0/24",    // documentation
	"192.168.0.0/16",  // private
	"198.18.0.0/15",   // benchmarking
	"198.51.100.0/24", // documentation
	"203.0.113.0/24",  // documentation
	"224.0.0.0/4",     // multicast
	"240.0.0.0/4",     // reserved
)

var blockedV6Prefixes = mustPrefixes(
	"::1/128",   // loopback
	"::/128",    // unspecified
	"fc00::/7",  // unique local
	"fe80::/10", // link-local
	"ff00::/8",  // multicast
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		prefixes = append(prefixes, netip.MustParsePrefix(c))
	}
	return prefixes
}

// blockedAddr reports whether addr falls in a blocked range.
func blockedAddr(addr netip.Addr) bool {
	if addr.Is4In6() {
		return blockedAddr(addr.Unmap())
	}
	if addr.Is4() {
		if addr == netip.MustParseAddr("255.255.255.255") {
			return true
		}
		for _, p := range blockedV4Prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}
	for _, p := range blockedV6Prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
