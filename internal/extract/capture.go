package extract

import (
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/pageforge/pageforge/internal/types"
)

// Paper dimensions in inches.
var paperSizes = map[string][2]float64{
	"A4":     {8.27, 11.69},
	"LETTER": {8.5, 11},
	"LEGAL":  {8.5, 14},
}

// ScreenshotRequest builds the CDP capture parameters. Quality only
// applies to jpeg; CDP rejects it for png.
func ScreenshotRequest(opts *types.ScreenshotOptions) *proto.PageCaptureScreenshot {
	req := &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	}
	if opts != nil && strings.EqualFold(opts.Format, "jpeg") {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = 90
		}
		req.Quality = &quality
	}
	return req
}

// ScreenshotMediaType returns the response media type for the options.
func ScreenshotMediaType(opts *types.ScreenshotOptions) string {
	if opts != nil && strings.EqualFold(opts.Format, "jpeg") {
		return "image/jpeg"
	}
	return "image/png"
}

// PDFRequest builds the CDP print parameters: background always on,
// scale fixed at 1.0, paper size from the named format, caller margins
// in inches.
func PDFRequest(opts *types.PdfOptions) *proto.PagePrintToPDF {
	size := paperSizes["A4"]
	if opts != nil {
		if dims, ok := paperSizes[strings.ToUpper(opts.PaperSize)]; ok {
			size = dims
		}
	}

	req := &proto.PagePrintToPDF{
		PrintBackground: true,
		Scale:           float64Ptr(1.0),
		PaperWidth:      float64Ptr(size[0]),
		PaperHeight:     float64Ptr(size[1]),
	}
	if opts != nil && opts.Margins != nil {
		req.MarginTop = float64Ptr(opts.Margins.Top)
		req.MarginBottom = float64Ptr(opts.Margins.Bottom)
		req.MarginLeft = float64Ptr(opts.Margins.Left)
		req.MarginRight = float64Ptr(opts.Margins.Right)
	}
	return req
}

func float64Ptr(v float64) *float64 { return &v }
