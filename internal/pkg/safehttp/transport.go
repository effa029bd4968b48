// Package safehttp builds outbound transports for operator-configured URLs.
package safehttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrPrivateAddress is wrapped by dial errors for refused destinations.
var ErrPrivateAddress = fmt.Errorf("destination address is not public")

// NewTransport returns a transport that refuses loopback, private and
// link-local destinations. The check runs on the connected address so DNS
// answers cannot bypass it.
func NewTransport(dialTimeout time.Duration) *http.Transport {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
		}

		if !IsPublic(ip) {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
		}
		return conn, nil
	}
	return base
}

// IsPublic reports whether ip is routable on the public internet.
func IsPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified())
}
