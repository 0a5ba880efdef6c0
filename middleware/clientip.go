package middleware

import (
	"net"
	"net/netip"

	"github.com/gin-gonic/gin"
)

// ClientKey returns the limiter key for the caller: gin's client IP, or the
// socket address when that is empty, in canonical form. IPv4-mapped IPv6
// addresses collapse to IPv4 and IPv6 addresses are masked to v6Prefix bits
// (0 or >=128 keeps the full address).
func ClientKey(c *gin.Context, v6Prefix int) string {
	raw := c.ClientIP()
	if raw == "" {
		raw = remoteHost(c.Request.RemoteAddr)
	}
	return NormalizeIP(raw, v6Prefix)
}

// NormalizeIP canonicalises raw. Unparseable input is returned unchanged.
func NormalizeIP(raw string, v6Prefix int) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return raw
	}
	addr = addr.WithZone("").Unmap()
	if addr.Is6() && v6Prefix > 0 && v6Prefix < 128 {
		if p, err := addr.Prefix(v6Prefix); err == nil {
			return p.String()
		}
	}
	return addr.String()
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
