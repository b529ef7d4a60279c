package security

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address of the client that sent r, for audit logs and spans.
//
// Forwarding headers are only honored when trustProxy is set. X-Forwarded-For reads
// "client, proxy1, proxy2" and the last trustedProxyCount hops are our own proxies,
// so the client is the entry just before them. A spoofed prefix added by the client
// is therefore ignored. trustedProxyCount values below 1 are treated as 1.
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := forwardedForClient(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := validIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedForClient(xff string, trustedProxyCount int) string {
	if strings.TrimSpace(xff) == "" {
		return ""
	}
	if trustedProxyCount < 1 {
		trustedProxyCount = 1
	}

	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}
	return validIP(hops[idx])
}

// validIP returns the canonical form of s, or "" when s is not an IP address
func validIP(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.String()
}

type clientIPContextKey struct{}

// WithClientIP stores the client address in ctx so that layers below the HTTP
// handlers can attribute audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the client address stored by WithClientIP, or ""
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
