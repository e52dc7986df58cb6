package middleware

import "net/http"

// BodyLimit caps request body reads. Oversized bodies surface to the
// handler's decoder as http.MaxBytesError, which maps to invalid input.
func BodyLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
