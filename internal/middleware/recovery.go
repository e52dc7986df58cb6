package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/types"
)

// Recovery converts handler panics into 500 responses instead of torn
// connections.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", RequestIDFrom(r.Context())).
					Msg("Panic recovered")

				writeError(w, r, types.KindExtractionError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
