package ingress

import (
	"net"
	"net/http"
	"strings"
)

// Provenance headers. The backend verifies these names.
const (
	HeaderProxySecret   = "FPJS-Proxy-Secret"
	HeaderClientIP      = "FPJS-Proxy-Client-IP"
	HeaderForwardedHost = "FPJS-Proxy-Forwarded-Host"
)

// addProvenanceHeaders sets the proxy secret, client address and original
// host on out. It reports whether the secret was available.
func addProvenanceHeaders(out http.Header, secret, clientIP, host string) bool {
	if clientIP != "" {
		out.Set(HeaderClientIP, clientIP)
	}
	if host != "" {
		out.Set(HeaderForwardedHost, host)
	}
	if secret == "" {
		out.Del(HeaderProxySecret)
		return false
	}
	out.Set(HeaderProxySecret, secret)
	return true
}

// clientIP returns the visitor address. A non-empty trustedHeader names a
// header set by the edge in front of this proxy; its first entry wins.
// Otherwise the host part of RemoteAddr is used.
func clientIP(r *http.Request, trustedHeader string) string {
	if trustedHeader != "" {
		if v := r.Header.Get(trustedHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestHost returns the hostname the visitor addressed, without port.
func requestHost(r *http.Request) string {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}
