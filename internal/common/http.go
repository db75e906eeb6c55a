package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP names the client a request is rate limited and logged under: the
// first X-Forwarded-For hop, then X-Real-IP, then the peer address. Header
// values that are not IP addresses are ignored so a client cannot pick an
// arbitrary limiter bucket.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return addr.Unmap().String()
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap().String()
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
