package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/types"
)

func echoRender(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
	return &types.RenderOutcome{HTML: "<html>" + req.URL + "</html>", FinalURL: req.URL}, nil
}

func TestRunPreservesInputOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	s := New(func(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
		// Later URLs finish first; result order must still match input.
		switch req.URL {
		case "https://a.test/":
			time.Sleep(30 * time.Millisecond)
		case "https://b.test/":
			time.Sleep(15 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, req.URL)
		mu.Unlock()
		return echoRender(ctx, req)
	})

	out := s.Run(context.Background(), &types.BatchRequest{
		URLs:        []string{"https://a.test/", "https://b.test/", "https://c.test/"},
		MaxParallel: 3,
	})

	require.Len(t, out.Results, 3)
	assert.Equal(t, "https://a.test/", out.Results[0].URL)
	assert.Equal(t, "https://b.test/", out.Results[1].URL)
	assert.Equal(t, "https://c.test/", out.Results[2].URL)
	assert.Equal(t, 3, out.Succeeded)
	assert.Zero(t, out.Failed)
	assert.NotEqual(t, []string{"https://a.test/", "https://b.test/", "https://c.test/"}, order)
}

func TestRunHonoursParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32

	s := New(func(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return echoRender(ctx, req)
	})

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site-%d.test/", i)
	}
	s.Run(context.Background(), &types.BatchRequest{URLs: urls, MaxParallel: 2})

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunClampsMaxParallel(t *testing.T) {
	s := New(echoRender)

	out := s.Run(context.Background(), &types.BatchRequest{
		URLs:        []string{"https://a.test/"},
		MaxParallel: 99,
	})
	assert.Equal(t, 1, out.Succeeded)

	out = s.Run(context.Background(), &types.BatchRequest{
		URLs: []string{"https://a.test/"},
	})
	assert.Equal(t, 1, out.Succeeded)
}

func TestRunIsolatesFailures(t *testing.T) {
	s := New(func(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
		if req.URL == "https://bad.test/" {
			return nil, types.NewRenderError(types.KindNetworkError, req.URL, "refused", types.ErrNetworkFailure)
		}
		return echoRender(ctx, req)
	})

	out := s.Run(context.Background(), &types.BatchRequest{
		URLs: []string{"https://ok.test/", "https://bad.test/", "https://also-ok.test/"},
	})

	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)

	bad := out.Results[1]
	assert.Equal(t, types.BatchItemFailure, bad.Status)
	require.NotNil(t, bad.Error)
	assert.Equal(t, types.KindNetworkError, bad.Error.Kind)
	assert.Nil(t, bad.Outcome)

	ok := out.Results[0]
	assert.Equal(t, types.BatchItemSuccess, ok.Status)
	require.NotNil(t, ok.Outcome)
	assert.Nil(t, ok.Error)
}

func TestRunWrapsPlainErrors(t *testing.T) {
	s := New(func(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
		return nil, types.ErrBrowserUnavailable
	})

	out := s.Run(context.Background(), &types.BatchRequest{URLs: []string{"https://a.test/"}})

	require.NotNil(t, out.Results[0].Error)
	assert.Equal(t, types.KindBrowserUnavailable, out.Results[0].Error.Kind)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	s := New(func(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
		if started.Add(1) == 1 {
			cancel()
			return nil, ctx.Err()
		}
		return echoRender(ctx, req)
	})

	urls := make([]string, 5)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site-%d.test/", i)
	}
	out := s.Run(ctx, &types.BatchRequest{URLs: urls, MaxParallel: 1})

	// The first item fails with the cancellation; the rest short-circuit.
	require.Len(t, out.Results, 5)
	assert.Equal(t, 5, out.Failed)
	for _, item := range out.Results {
		assert.Equal(t, types.BatchItemFailure, item.Status)
	}
}

func TestItemRequestClonesTemplate(t *testing.T) {
	tr := true
	template := &types.RenderRequest{
		WaitMode:       types.WaitModeLoad,
		Viewport:       &types.Viewport{Width: 800, Height: 600},
		ScrollToBottom: &tr,
		Cookies:        []types.Cookie{{Name: "a", Value: "1"}},
		ExtraHeaders:   map[string]string{"x-test": "1"},
		WantPdf:        &types.PdfOptions{PaperSize: "A4", Margins: &types.PdfMargins{Top: 1}},
	}

	req := itemRequest("https://a.test/", template)

	assert.Equal(t, "https://a.test/", req.URL)
	assert.Equal(t, types.WaitModeLoad, req.WaitMode)
	require.NotNil(t, req.Viewport)
	assert.NotSame(t, template.Viewport, req.Viewport)
	assert.NotSame(t, template.ScrollToBottom, req.ScrollToBottom)
	assert.NotSame(t, template.WantPdf, req.WantPdf)
	assert.NotSame(t, template.WantPdf.Margins, req.WantPdf.Margins)

	req.Cookies[0].Value = "changed"
	assert.Equal(t, "1", template.Cookies[0].Value)
	req.ExtraHeaders["x-test"] = "changed"
	assert.Equal(t, "1", template.ExtraHeaders["x-test"])
}

func TestItemRequestNilTemplate(t *testing.T) {
	req := itemRequest("https://a.test/", nil)
	assert.Equal(t, "https://a.test/", req.URL)
	assert.Empty(t, req.WaitMode)
}
