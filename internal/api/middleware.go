/**
 * @description
 * Authentication middleware for the point service. All point endpoints are
 * server-to-server, so access is guarded by a shared internal API key.
 */
package api

import (
	"net/http"
)

// InternalAuthMiddleware validates the internal API key for server-to-server
// calls. An empty required key disables the check, which is the expected
// setup in local development.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || provided != requiredKey {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
