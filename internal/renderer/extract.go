package renderer

import (
	"context"
	"io"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/extract"
	"github.com/pageforge/pageforge/internal/humanize"
	"github.com/pageforge/pageforge/internal/security"
	"github.com/pageforge/pageforge/internal/types"
)

// extract reads the page's artifacts into the outcome. HTML is the load-
// bearing artifact: once it is captured, screenshot and metadata failures
// degrade the outcome instead of failing the render.
func (r *Renderer) extract(ctx context.Context, page *rod.Page, req *types.RenderRequest, console *consoleCollector) (*types.RenderOutcome, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, types.NewRenderError(types.KindExtractionError, req.URL, "could not read page content", err)
	}
	title, finalURL := pageTitleURL(page)

	outcome := &types.RenderOutcome{
		HTML:          html,
		Title:         title,
		FinalURL:      finalURL,
		ContentLength: len(html),
	}
	if console != nil {
		outcome.ConsoleLogs = console.Entries()
	}

	if req.WantScreenshot != nil {
		shot, err := page.Screenshot(req.WantScreenshot.FullPage, extract.ScreenshotRequest(req.WantScreenshot))
		if err != nil {
			log.Warn().Str("url", security.RedactURL(req.URL)).Err(err).Msg("Screenshot capture failed, returning HTML without it")
		} else {
			outcome.ScreenshotBytes = shot
		}
	}

	if req.WantPdf != nil {
		pdf, err := r.capturePDF(ctx, page, req)
		if err != nil {
			return nil, types.NewRenderError(types.KindExtractionError, req.URL, "PDF emission failed", err)
		}
		outcome.PdfBytes = pdf
	}

	return outcome, nil
}

// capturePDF re-navigates for print. Print rendering reflows the page,
// so a clean network-idle load with settled assets prints better than
// the scrolled, mutated DOM.
func (r *Renderer) capturePDF(ctx context.Context, page *rod.Page, req *types.RenderRequest) ([]byte, error) {
	if err := navigateAndWait(page, req.URL, types.WaitModeNetworkIdle, operationTimeout); err != nil {
		log.Debug().Err(err).Msg("PDF fresh navigation did not settle, printing current state")
	} else {
		humanize.WaitForStylesheetsAndImages(ctx, page)
	}

	stream, err := page.PDF(extract.PDFRequest(req.WantPdf))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(stream)
}
