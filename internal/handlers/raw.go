package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pageforge/pageforge/internal/extract"
	"github.com/pageforge/pageforge/internal/metrics"
	"github.com/pageforge/pageforge/internal/types"
)

// HandleHTML returns the rendered document verbatim. Accepts a JSON body
// on POST or query parameters on GET.
func (h *Handler) HandleHTML(w http.ResponseWriter, r *http.Request) {
	req, err := h.renderRequestFrom(r)
	if err != nil {
		h.writeRenderError(w, r, err)
		return
	}
	req.WantScreenshot = nil
	req.WantPdf = nil

	outcome, ok := h.runRender(w, r, "html", req)
	if !ok {
		return
	}

	setArtifactHeaders(w, outcome)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(outcome.HTML))
}

// HandleContent returns the visible text of the rendered document.
func (h *Handler) HandleContent(w http.ResponseWriter, r *http.Request) {
	req, err := h.renderRequestFrom(r)
	if err != nil {
		h.writeRenderError(w, r, err)
		return
	}
	req.WantScreenshot = nil
	req.WantPdf = nil

	outcome, ok := h.runRender(w, r, "content", req)
	if !ok {
		return
	}

	text, err := extract.Text(outcome.HTML)
	if err != nil {
		h.writeRenderError(w, r, types.NewRenderError(
			types.KindExtractionError, outcome.OriginalURL, "Failed to extract page text", err))
		return
	}

	setArtifactHeaders(w, outcome)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

// HandleScreenshot returns the page image.
func (h *Handler) HandleScreenshot(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r.URL.Query())
	if err != nil {
		h.writeRenderError(w, r, err)
		return
	}
	req.WantScreenshot = screenshotOptionsFromQuery(r.URL.Query())
	req.WantPdf = nil

	outcome, ok := h.runRender(w, r, "screenshot", req)
	if !ok {
		return
	}
	if len(outcome.ScreenshotBytes) == 0 {
		h.writeRenderError(w, r, types.NewRenderError(
			types.KindExtractionError, outcome.OriginalURL, "Screenshot capture produced no image", nil))
		return
	}

	setArtifactHeaders(w, outcome)
	w.Header().Set("Content-Type", extract.ScreenshotMediaType(req.WantScreenshot))
	_, _ = w.Write(outcome.ScreenshotBytes)
}

// HandlePDF returns the page printed to PDF.
func (h *Handler) HandlePDF(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r.URL.Query())
	if err != nil {
		h.writeRenderError(w, r, err)
		return
	}
	req.WantScreenshot = nil
	req.WantPdf = pdfOptionsFromQuery(r.URL.Query())

	outcome, ok := h.runRender(w, r, "pdf", req)
	if !ok {
		return
	}
	if len(outcome.PdfBytes) == 0 {
		h.writeRenderError(w, r, types.NewRenderError(
			types.KindExtractionError, outcome.OriginalURL, "PDF capture produced no document", nil))
		return
	}

	setArtifactHeaders(w, outcome)
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(outcome.PdfBytes)
}

// runRender executes the render and writes the error response itself on
// failure. The bool reports whether the caller owns the response.
func (h *Handler) runRender(w http.ResponseWriter, r *http.Request, endpoint string, req *types.RenderRequest) (*types.RenderOutcome, bool) {
	started := time.Now()
	outcome, err := h.render.Render(r.Context(), req)
	metrics.RecordRender(endpoint, outcomeLabel(outcome, err), time.Since(started))
	if err != nil {
		h.writeRenderError(w, r, err)
		return nil, false
	}
	return outcome, true
}

// renderRequestFrom builds the request from a JSON body on POST or from
// query parameters otherwise.
func (h *Handler) renderRequestFrom(r *http.Request) (*types.RenderRequest, error) {
	if r.Method == http.MethodPost {
		req := &types.RenderRequest{}
		if err := h.decodeJSON(r, req); err != nil {
			return nil, err
		}
		return req, nil
	}
	return requestFromQuery(r.URL.Query())
}

// requestFromQuery maps the scalar query form onto a RenderRequest. List
// and nested options stay POST-only.
func requestFromQuery(q url.Values) (*types.RenderRequest, error) {
	req := &types.RenderRequest{
		URL:               q.Get("url"),
		WaitMode:          types.WaitMode(q.Get("waitMode")),
		UserAgentOverride: q.Get("userAgent"),
	}

	var err error
	if req.HardTimeoutMs, err = queryInt(q, "hardTimeoutMs"); err != nil {
		return nil, err
	}
	if req.PostLoadWaitMs, err = queryInt(q, "postLoadWaitMs"); err != nil {
		return nil, err
	}
	if req.ScrollToBottom, err = queryBool(q, "scrollToBottom"); err != nil {
		return nil, err
	}
	if req.ReturnPartialOnTimeout, err = queryBool(q, "returnPartialOnTimeout"); err != nil {
		return nil, err
	}
	return req, nil
}

func screenshotOptionsFromQuery(q url.Values) *types.ScreenshotOptions {
	opts := &types.ScreenshotOptions{
		FullPage: strings.EqualFold(q.Get("fullPage"), "true"),
		Format:   q.Get("format"),
	}
	if quality, err := strconv.Atoi(q.Get("quality")); err == nil {
		opts.Quality = quality
	}
	return opts
}

func pdfOptionsFromQuery(q url.Values) *types.PdfOptions {
	return &types.PdfOptions{
		PaperSize:  q.Get("paperSize"),
		Background: strings.EqualFold(q.Get("background"), "true"),
	}
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewRenderError(types.KindInvalidInput, "", key+" must be an integer", err)
	}
	return v, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, types.NewRenderError(types.KindInvalidInput, "", key+" must be a boolean", err)
	}
	return &v, nil
}

// setArtifactHeaders carries render metadata on the raw endpoints, where
// the body is the artifact itself.
func setArtifactHeaders(w http.ResponseWriter, outcome *types.RenderOutcome) {
	w.Header().Set("X-Rendered-URL", headerSafe(outcome.FinalURL))
	w.Header().Set("X-Page-Title", headerSafe(outcome.Title))
	w.Header().Set("X-Was-Timeout", strconv.FormatBool(outcome.WasTimeout))
	w.Header().Set("X-Is-Emergency", strconv.FormatBool(outcome.IsEmergencyExtraction))
	w.Header().Set("X-Content-Length", strconv.Itoa(outcome.ContentLength))
}

// headerSafe strips characters that would break or split a header value.
func headerSafe(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r < 0x20 {
			return -1
		}
		return r
	}, s)
	if len(s) > 1024 {
		s = s[:1024]
	}
	return s
}
