package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/assets"
	"github.com/pageforge/pageforge/pkg/version"
)

// Router builds the service mux. Method matching comes from the pattern
// syntax; auth, logging and the rest wrap the returned mux.
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/status", h.HandleStatus)
	mux.HandleFunc("POST /api/render", h.HandleRender)
	mux.HandleFunc("GET /api/html", h.HandleHTML)
	mux.HandleFunc("POST /api/html", h.HandleHTML)
	mux.HandleFunc("GET /api/content", h.HandleContent)
	mux.HandleFunc("POST /api/content", h.HandleContent)
	mux.HandleFunc("GET /api/screenshot", h.HandleScreenshot)
	mux.HandleFunc("GET /api/pdf", h.HandlePDF)
	mux.HandleFunc("POST /api/batch", h.HandleBatch)

	return mux
}

// HandleIndex serves the embedded landing page.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := assets.RenderIndex(assets.IndexData{
		Version:   version.Full(),
		GoVersion: version.GoVersion(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Browser:   h.engine.State().String(),
		Sessions:  h.engine.SessionCount(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render landing page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}
