// Package security provides security-related HTTP middleware.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Config holds the configuration for security middleware
type Config struct {
	// FilterEnabled enables the request filter
	FilterEnabled bool
	// MaxBodySizeMB is the maximum request body size in megabytes
	MaxBodySizeMB int
}

// exemptPaths bypass filtering entirely
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// scannerPrefixes are path prefixes that only automated scanners request.
// A public registry endpoint sees a constant stream of these.
var scannerPrefixes = []string{
	"/.php",
	"/wp-admin",
	"/wp-includes",
	"/wp-content",
	"/wp-login",
	"/.git/",
	"/.env",
	"/web-inf/",
	"/cgi-bin/",
	"/admin/",
	"/phpmyadmin",
	"/phpinfo",
	"/shell",
	"/config.",
	"/.htaccess",
	"/.htpasswd",
	"/server-status",
	"/xmlrpc.php",
}

// traversalPatterns indicate path traversal or injection attempts,
// checked both raw and URL-decoded
var traversalPatterns = []string{
	"../",
	"..%2f",
	"..%5c",
	"%2e%2e/",
	"%00",
}

// blockedPath reports whether a lowercased path matches any scanner
// prefix or traversal pattern.
func blockedPath(path string) bool {
	for _, prefix := range scannerPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, pattern := range traversalPatterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// FilterMiddleware returns middleware that rejects requests matching known
// attack patterns: scanner probes, path traversal, and encoding tricks.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			path := strings.ToLower(r.URL.Path)
			if blockedPath(path) {
				writeBlockedResponse(w)
				return
			}

			// Decode and re-check; traversal sequences are often hidden
			// behind one or two rounds of percent-encoding
			rawPath := r.URL.RawPath
			if rawPath == "" {
				rawPath = r.URL.Path
			}
			decoded, err := url.PathUnescape(rawPath)
			if err == nil && decoded != path {
				decodedLower := strings.ToLower(decoded)
				for _, pattern := range traversalPatterns {
					if strings.Contains(decodedLower, pattern) {
						writeBlockedResponse(w)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeBlockedResponse writes a generic 400 without revealing what triggered the block
func writeBlockedResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "BAD_REQUEST",
			"message": "Invalid request",
		},
	})
}
