package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/types"
)

// authExemptPaths can always be reached without a token: the health
// probe feeds load balancers, and the landing page carries no data.
var authExemptPaths = map[string]bool{
	"/":           true,
	"/api/health": true,
}

// Auth enforces the shared-secret token on every /api route except the
// health probe. The token may arrive as ?token=, X-Token, or a bearer
// Authorization header; comparison is constant-time.
func Auth(cfg *config.Config) func(http.Handler) http.Handler {
	secret := []byte(cfg.AuthToken)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authExemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), secret) != 1 {
				writeError(w, r, types.KindUnauthorized, "Invalid or missing token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads the token from its three accepted presentations,
// in query, header, bearer order.
func extractToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t := r.Header.Get("X-Token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
