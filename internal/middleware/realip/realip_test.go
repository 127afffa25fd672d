package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture wraps a handler that records the resolved client IP
func capture(cfg Config) (http.Handler, *string) {
	var ip string
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = GetClientIP(r)
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &ip
}

func TestMiddleware_TrustProxyDisabled(t *testing.T) {
	handler, capturedIP := capture(Config{
		TrustProxy:     false,
		TrustedProxies: []string{"10.0.0.0/8"},
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	// RemoteAddr wins; the forwarded header is ignored
	assert.Equal(t, "192.168.1.100", *capturedIP)
}

func TestMiddleware_TrustedProxyChain(t *testing.T) {
	handler, capturedIP := capture(Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12"},
	})

	t.Run("single proxy", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.5")

		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "203.0.113.50", *capturedIP)
	})

	t.Run("multiple trusted hops", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 172.16.0.1, 10.0.0.2")

		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "203.0.113.50", *capturedIP)
	})
}

func TestMiddleware_UntrustedPeerHeaderIgnored(t *testing.T) {
	handler, capturedIP := capture(Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8"},
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.100:12345" // not in 10/8
	req.Header.Set("X-Forwarded-For", "203.0.113.50")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.168.1.100", *capturedIP)
}

func TestMiddleware_XRealIPFallback(t *testing.T) {
	handler, capturedIP := capture(Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8"},
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Real-IP", "203.0.113.50")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.50", *capturedIP)
}

func TestMiddleware_AllHopsTrusted(t *testing.T) {
	handler, capturedIP := capture(Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "192.168.1.1, 172.16.0.1, 10.0.0.2")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	// Leftmost entry is the original client
	assert.Equal(t, "192.168.1.1", *capturedIP)
}

func TestMiddleware_NoForwardedHeader(t *testing.T) {
	handler, capturedIP := capture(Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8"},
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"

	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "10.0.0.1", *capturedIP)
}

func TestGetClientIP_NoContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.100:12345"

	// Without the middleware, falls back to RemoteAddr
	assert.Equal(t, "192.168.1.100", GetClientIP(req))
}

func TestStripPort(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"192.168.1.100:12345", "192.168.1.100"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"192.168.1.100", "192.168.1.100"},
		{"[::1]:8080", "::1"},
		{"::1", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripPort(tt.addr))
		})
	}
}

func TestParseTrustedNets(t *testing.T) {
	nets := parseTrustedNets([]string{"10.0.0.0/8", "172.16.0.0/12", "203.0.113.7", "::1", "garbage"})
	// Bare IPs become /32 or /128, garbage is dropped
	require.Len(t, nets, 4)

	tests := []struct {
		ip       string
		expected bool
	}{
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"203.0.113.7", true},
		{"203.0.113.8", false},
		{"::1", true},
		{"8.8.8.8", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.expected, inTrustedNet(tt.ip, nets), "IP: %s", tt.ip)
		})
	}
}
