// Package safeclient builds outbound HTTP clients that cannot be pointed at
// internal infrastructure.
//
// Destination addresses are checked when the socket connects, after DNS
// resolution, so a hostname that resolves to a private address is refused
// just like a literal one. An optional host allow-list additionally pins the
// client to known services, redirects included.
package safeclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrForbiddenIP is returned when the resolved address is not publicly routable.
	ErrForbiddenIP = errors.New("connection to private/internal IP addresses is forbidden")
	// ErrHostNotAllowed is returned for hosts outside the client's allow-list.
	ErrHostNotAllowed = errors.New("host is not allowed")
)

const maxRedirects = 5

// Reserved ranges not covered by the netip.Addr predicates.
var reserved = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("255.255.255.255/32"),
	netip.MustParsePrefix("fec0::/10"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsForbiddenIP reports whether ip is private, loopback, link-local,
// multicast, unspecified or reserved. IPv4-mapped IPv6 addresses are
// judged as IPv4.
func IsForbiddenIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return true
	}
	return isForbidden(addr.Unmap())
}

func isForbidden(addr netip.Addr) bool {
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return true
	}
	for _, p := range reserved {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

type options struct {
	timeout time.Duration
	hosts   map[string]bool
}

// Option configures a client.
type Option func(*options)

// WithTimeout sets the overall request timeout. The default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithAllowedHosts restricts requests, and the redirects they follow, to hosts.
func WithAllowedHosts(hosts ...string) Option {
	return func(o *options) {
		if o.hosts == nil {
			o.hosts = make(map[string]bool, len(hosts))
		}
		for _, h := range hosts {
			o.hosts[strings.ToLower(h)] = true
		}
	}
}

// New returns an *http.Client that refuses non-public destinations.
func New(opts ...Option) *http.Client {
	o := &options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   checkAddress,
	}

	var rt http.RoundTripper = &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	if o.hosts != nil {
		rt = &hostGuard{next: rt, hosts: o.hosts}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   o.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// checkAddress runs on every connect with the resolved address.
func checkAddress(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	if isForbidden(ap.Addr().Unmap()) {
		return ErrForbiddenIP
	}
	return nil
}

// hostGuard rejects requests whose host is not allow-listed. It sits in the
// transport so redirects are checked too.
type hostGuard struct {
	next  http.RoundTripper
	hosts map[string]bool
}

func (g *hostGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	if !g.hosts[strings.ToLower(req.URL.Hostname())] {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, req.URL.Hostname())
	}
	return g.next.RoundTrip(req)
}
