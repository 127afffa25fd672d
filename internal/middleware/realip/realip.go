// Package realip resolves the real client IP behind trusted proxies.
// The rate limiter keys on this, so a spoofable X-Forwarded-For would
// let one client exhaust another's quota.
package realip

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

// ClientIPKey is the context key for the resolved client IP
const ClientIPKey contextKey = "client_ip"

// Config holds the configuration for the real IP middleware
type Config struct {
	// TrustProxy enables X-Forwarded-For header parsing
	TrustProxy bool
	// TrustedProxies is a list of CIDR ranges (or single IPs) for trusted proxies
	TrustedProxies []string
}

// parseTrustedNets parses CIDR ranges, accepting bare IPs as /32 or /128.
// Unparseable entries are dropped.
func parseTrustedNets(cidrs []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			if ip := net.ParseIP(cidr); ip != nil {
				if ip.To4() != nil {
					_, network, _ = net.ParseCIDR(cidr + "/32")
				} else {
					_, network, _ = net.ParseCIDR(cidr + "/128")
				}
			}
		}
		if network != nil {
			nets = append(nets, network)
		}
	}
	return nets
}

// Middleware resolves the client IP once per request and stores it on the
// request context. Forwarded headers are honored only when the direct peer
// is inside a trusted network.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	var trustedNets []*net.IPNet
	if cfg.TrustProxy {
		trustedNets = parseTrustedNets(cfg.TrustedProxies)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := resolveClientIP(r, cfg.TrustProxy, trustedNets)
			ctx := context.WithValue(r.Context(), ClientIPKey, clientIP)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveClientIP(r *http.Request, trustProxy bool, trustedNets []*net.IPNet) string {
	remoteIP := stripPort(r.RemoteAddr)

	if !trustProxy {
		return remoteIP
	}

	// Forwarded headers from an untrusted peer are attacker-controlled
	if !inTrustedNet(remoteIP, trustedNets) {
		return remoteIP
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		return remoteIP
	}

	// XFF is "client, proxy1, proxy2". Walk right to left; the first hop
	// outside the trusted networks is the client.
	ips := strings.Split(xff, ",")
	for i := len(ips) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(ips[i])
		if ip == "" {
			continue
		}
		if !inTrustedNet(ip, trustedNets) {
			return ip
		}
	}

	// Whole chain is trusted; the leftmost entry is the original client
	if len(ips) > 0 {
		return strings.TrimSpace(ips[0])
	}

	return remoteIP
}

// stripPort drops the port from an address, tolerating bare IPs
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func inTrustedNet(ipStr string, trustedNets []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	for _, network := range trustedNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetClientIP retrieves the resolved client IP from the request context.
// Falls back to RemoteAddr if the middleware never ran.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return stripPort(r.RemoteAddr)
}
