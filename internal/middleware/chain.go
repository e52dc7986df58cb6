// Package middleware provides the HTTP middleware stack for the server.
package middleware

import "net/http"

// Chain composes middleware left to right: Chain(A, B, C) executes as
// A(B(C(handler))).
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
