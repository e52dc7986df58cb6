package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/types"
)

// deadlineWriter discards writes once the request deadline fired, so a
// late handler goroutine never races the 504 body already sent.
type deadlineWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	expired     bool
	wroteHeader bool
}

func (dw *deadlineWriter) Write(b []byte) (int, error) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.expired {
		return len(b), nil
	}
	return dw.ResponseWriter.Write(b)
}

func (dw *deadlineWriter) WriteHeader(code int) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.expired || dw.wroteHeader {
		return
	}
	dw.wroteHeader = true
	dw.ResponseWriter.WriteHeader(code)
}

func (dw *deadlineWriter) Header() http.Header {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.expired {
		return make(http.Header)
	}
	return dw.ResponseWriter.Header()
}

func (dw *deadlineWriter) Flush() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.expired {
		return
	}
	if f, ok := dw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// expire marks the writer dead. Returns true when no header went out yet,
// meaning the caller still owns the response.
func (dw *deadlineWriter) expire() bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	owned := !dw.wroteHeader
	dw.expired = true
	return owned
}

// Timeout bounds the whole request. The limit is a safety net above the
// largest render budget plus recovery headroom, not a render control; the
// renderer enforces its own per-request budget from the context deadline.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			dw := &deadlineWriter{ResponseWriter: w}
			done := make(chan struct{})

			go func() {
				defer close(done)
				next.ServeHTTP(dw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if dw.expire() {
					log.Warn().
						Str("request_id", RequestIDFrom(r.Context())).
						Str("path", r.URL.Path).
						Dur("limit", limit).
						Msg("Request exceeded server timeout")
					writeError(w, r, types.KindTimeout, "Request exceeded the server time limit")
				}
			}
		})
	}
}
