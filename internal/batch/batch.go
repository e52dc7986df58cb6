// Package batch fans one render template out over many URLs with a
// bounded worker pool. Results preserve input order; each URL succeeds
// or fails on its own.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pageforge/pageforge/internal/metrics"
	"github.com/pageforge/pageforge/internal/security"
	"github.com/pageforge/pageforge/internal/types"
)

// RenderFunc runs one render. The renderer satisfies it; tests stub it.
type RenderFunc func(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error)

// Scheduler runs batches against a render function.
type Scheduler struct {
	render RenderFunc
}

// New creates a Scheduler.
func New(render RenderFunc) *Scheduler {
	return &Scheduler{render: render}
}

// Run renders every URL in the batch with at most maxParallel workers.
// The caller validates the envelope first; Run only normalises the
// parallelism clamp. A canceled context fails the remaining items
// without abandoning results already collected.
func (s *Scheduler) Run(ctx context.Context, req *types.BatchRequest) *types.BatchOutcome {
	req.Normalize()
	metrics.RecordBatch(len(req.URLs))

	started := time.Now()
	results := make([]types.BatchItem, len(req.URLs))

	var g errgroup.Group
	g.SetLimit(req.MaxParallel)

	for i, rawURL := range req.URLs {
		g.Go(func() error {
			results[i] = s.renderItem(ctx, rawURL, req.PerItemOptions)
			return nil
		})
	}
	_ = g.Wait()

	outcome := &types.BatchOutcome{
		Results:         results,
		TotalDurationMs: time.Since(started).Milliseconds(),
	}
	for _, item := range results {
		if item.Status == types.BatchItemSuccess {
			outcome.Succeeded++
		} else {
			outcome.Failed++
		}
	}

	log.Info().
		Int("urls", len(req.URLs)).
		Int("parallel", req.MaxParallel).
		Int("succeeded", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Int64("total_ms", outcome.TotalDurationMs).
		Msg("Batch completed")
	return outcome
}

// renderItem runs one URL and never panics the pool: any error becomes
// that URL's failure record.
func (s *Scheduler) renderItem(ctx context.Context, rawURL string, template *types.RenderRequest) types.BatchItem {
	item := types.BatchItem{URL: rawURL}
	started := time.Now()

	if err := ctx.Err(); err != nil {
		item.Status = types.BatchItemFailure
		item.Error = itemError(err, rawURL)
		return item
	}

	outcome, err := s.render(ctx, itemRequest(rawURL, template))
	item.DurationMs = time.Since(started).Milliseconds()

	if err != nil {
		log.Warn().Str("url", security.RedactURL(rawURL)).Err(err).Msg("Batch item failed")
		item.Status = types.BatchItemFailure
		item.Error = itemError(err, rawURL)
		return item
	}
	item.Status = types.BatchItemSuccess
	item.Outcome = outcome
	return item
}

// itemRequest builds one item's request from the shared template. The
// clone is deep for every field the pipeline mutates, so concurrent
// items never share writable state.
func itemRequest(rawURL string, template *types.RenderRequest) *types.RenderRequest {
	req := &types.RenderRequest{}
	if template != nil {
		*req = *template

		if template.Viewport != nil {
			vp := *template.Viewport
			req.Viewport = &vp
		}
		if template.ScrollToBottom != nil {
			v := *template.ScrollToBottom
			req.ScrollToBottom = &v
		}
		if template.ReturnPartialOnTimeout != nil {
			v := *template.ReturnPartialOnTimeout
			req.ReturnPartialOnTimeout = &v
		}
		if template.WantScreenshot != nil {
			shot := *template.WantScreenshot
			req.WantScreenshot = &shot
		}
		if template.WantPdf != nil {
			pdf := *template.WantPdf
			if template.WantPdf.Margins != nil {
				m := *template.WantPdf.Margins
				pdf.Margins = &m
			}
			req.WantPdf = &pdf
		}
		req.Cookies = append([]types.Cookie(nil), template.Cookies...)
		req.WaitForSelectors = append([]string(nil), template.WaitForSelectors...)
		req.ClickSelectors = append([]string(nil), template.ClickSelectors...)
		req.RemoveSelectors = append([]string(nil), template.RemoveSelectors...)
		if template.ExtraHeaders != nil {
			req.ExtraHeaders = make(map[string]string, len(template.ExtraHeaders))
			for k, v := range template.ExtraHeaders {
				req.ExtraHeaders[k] = v
			}
		}
	}
	req.URL = rawURL
	return req
}

// itemError normalises an arbitrary error into the wire record.
func itemError(err error, rawURL string) *types.RenderError {
	var re *types.RenderError
	if errors.As(err, &re) {
		return re
	}
	return types.NewRenderError(types.KindOf(err), rawURL, err.Error(), err)
}
