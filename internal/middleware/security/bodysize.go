package security

import (
	"net/http"
)

// MaxBodySizeMiddleware caps request body size at maxSizeMB megabytes.
// Contract sources and ABIs are small; anything near the cap is abuse.
func MaxBodySizeMiddleware(maxSizeMB int) func(http.Handler) http.Handler {
	maxBytes := int64(maxSizeMB) << 20

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
