package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/memoria-ai/memoria/internal/api"
)

type contextKey string

// BearerAuth enforces a single static service token. An empty configured
// token disables authentication entirely (local single-user deployments).
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			got := strings.TrimPrefix(authHeader, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				api.Error(w, http.StatusUnauthorized, "invalid service token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
