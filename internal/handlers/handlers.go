// Package handlers provides the HTTP surface of the render service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/browser"
	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/middleware"
	"github.com/pageforge/pageforge/internal/metrics"
	"github.com/pageforge/pageforge/internal/security"
	"github.com/pageforge/pageforge/internal/stats"
	"github.com/pageforge/pageforge/internal/types"
	"github.com/pageforge/pageforge/pkg/version"
)

// RenderService runs a single render to completion.
type RenderService interface {
	Render(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error)
}

// BatchRunner fans a batch request out over the render service.
type BatchRunner interface {
	Run(ctx context.Context, req *types.BatchRequest) *types.BatchOutcome
}

// EngineInfo exposes browser lifecycle state for health and status
// reporting. *browser.Manager satisfies it.
type EngineInfo interface {
	Connected() bool
	State() browser.State
	Uptime() time.Duration
	Restarts() int64
	SessionCount() int
}

// Handler holds the dependencies of all endpoints.
type Handler struct {
	cfg     *config.Config
	render  RenderService
	batch   BatchRunner
	engine  EngineInfo
	stats   *stats.Registry
	started time.Time
}

// New creates a Handler.
func New(cfg *config.Config, render RenderService, batch BatchRunner, engine EngineInfo, reg *stats.Registry) *Handler {
	return &Handler{
		cfg:     cfg,
		render:  render,
		batch:   batch,
		engine:  engine,
		stats:   reg,
		started: time.Now(),
	}
}

// HandleHealth reports liveness. Unauthenticated so orchestrators can
// probe it.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.writeJSON(w, http.StatusOK, &types.HealthStatus{
		BrowserConnected: h.engine.Connected(),
		UptimeSec:        int64(time.Since(h.started).Seconds()),
		MemoryBytes:      ms.Alloc,
		Version:          version.Full(),
	})
}

type browserStatus struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Restarts  int64  `json:"restarts"`
	Sessions  int    `json:"sessions"`
	UptimeSec int64  `json:"uptimeSec"`
}

type statusResponse struct {
	Version      string                         `json:"version"`
	Browser      browserStatus                  `json:"browser"`
	TotalRenders int64                          `json:"totalRenders"`
	TrackedHosts int                            `json:"trackedHosts"`
	Hosts        map[string]stats.HostStatsJSON `json:"hosts"`
}

// HandleStatus reports browser lifecycle state and per-host render
// statistics.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, &statusResponse{
		Version: version.Full(),
		Browser: browserStatus{
			State:     h.engine.State().String(),
			Connected: h.engine.Connected(),
			Restarts:  h.engine.Restarts(),
			Sessions:  h.engine.SessionCount(),
			UptimeSec: int64(h.engine.Uptime().Seconds()),
		},
		TotalRenders: h.stats.TotalRenders(),
		TrackedHosts: h.stats.HostCount(),
		Hosts:        h.stats.All(),
	})
}

// HandleRender runs one render and returns the full outcome as JSON.
// Screenshot and PDF bytes ride along base64-encoded.
func (h *Handler) HandleRender(w http.ResponseWriter, r *http.Request) {
	req := &types.RenderRequest{}
	if err := h.decodeJSON(r, req); err != nil {
		h.writeRenderError(w, r, err)
		return
	}

	started := time.Now()
	outcome, err := h.render.Render(r.Context(), req)
	metrics.RecordRender("render", outcomeLabel(outcome, err), time.Since(started))
	if err != nil {
		h.writeRenderError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// HandleBatch renders many URLs with one options template. Per-item
// failures are reported inline, so the envelope is always 200.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	req := &types.BatchRequest{}
	if err := h.decodeJSON(r, req); err != nil {
		h.writeRenderError(w, r, err)
		return
	}
	if err := req.Validate(h.cfg.MaxBatchURLs); err != nil {
		h.writeRenderError(w, r, err)
		return
	}

	started := time.Now()
	outcome := h.batch.Run(r.Context(), req)
	metrics.RecordRender("batch", "success", time.Since(started))
	h.writeJSON(w, http.StatusOK, outcome)
}

// decodeJSON reads the request body through a pooled buffer. Oversized
// bodies arrive as http.MaxBytesError from the body-limit middleware.
func (h *Handler) decodeJSON(r *http.Request, v any) error {
	buf := getDecodeBuffer()
	defer putDecodeBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return types.NewRenderError(types.KindInvalidInput, "", "Request body too large", err)
		}
		return types.NewRenderError(types.KindInvalidInput, "", "Failed to read request body", err)
	}
	if err := json.Unmarshal(buf.Bytes(), v); err != nil {
		return types.NewRenderError(types.KindInvalidInput, "", "Invalid JSON request", err)
	}
	return nil
}

// writeJSON buffers the encoded payload before writing, so encoding
// failures surface as a clean 500 instead of a torn response.
func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	buf := getEncodeBuffer()
	defer putEncodeBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"kind":"extraction_error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	_, _ = w.Write(buf.Bytes())
}

// writeRenderError maps any error onto the wire error record and the
// status code its kind carries.
func (h *Handler) writeRenderError(w http.ResponseWriter, r *http.Request, err error) {
	var re *types.RenderError
	if !errors.As(err, &re) {
		re = types.NewRenderError(types.KindOf(err), "", err.Error(), err)
	}
	if re.RequestID == "" {
		re.RequestID = middleware.RequestIDFrom(r.Context())
	}

	log.Warn().
		Str("request_id", re.RequestID).
		Str("kind", string(re.Kind)).
		Str("url", security.RedactURL(re.URL)).
		Str("message", re.Message).
		Msg("Request failed")

	h.writeJSON(w, re.Kind.HTTPStatus(), re)
}

// outcomeLabel picks the metrics outcome label for a completed render.
func outcomeLabel(outcome *types.RenderOutcome, err error) string {
	if err != nil {
		return string(types.KindOf(err))
	}
	if outcome != nil && outcome.IsEmergencyExtraction {
		return "partial"
	}
	return "success"
}
