package types

// ConsoleEntry is one captured console message.
type ConsoleEntry struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// RenderOutcome is the output record for a completed render. Screenshot
// and PDF bytes are base64 on the JSON wire (encoding/json default for
// []byte); the raw endpoints serve them directly.
type RenderOutcome struct {
	HTML                  string         `json:"html"`
	Title                 string         `json:"title"`
	FinalURL              string         `json:"finalUrl"`
	OriginalURL           string         `json:"originalUrl"`
	StartedAtIso          string         `json:"startedAtIso"`
	DurationMs            int64          `json:"durationMs"`
	WasTimeout            bool           `json:"wasTimeout"`
	IsEmergencyExtraction bool           `json:"isEmergencyExtraction"`
	ContentLength         int            `json:"contentLength"`
	ConsoleLogs           []ConsoleEntry `json:"consoleLogs,omitempty"`
	ScreenshotBytes       []byte         `json:"screenshotBytes,omitempty"`
	PdfBytes              []byte         `json:"pdfBytes,omitempty"`
}

// BatchItemStatus tags a per-URL batch result.
type BatchItemStatus string

const (
	BatchItemSuccess BatchItemStatus = "success"
	BatchItemFailure BatchItemStatus = "failure"
)

// BatchItem is one per-URL result inside a BatchOutcome. Exactly one of
// Outcome and Error is set, according to Status.
type BatchItem struct {
	URL        string          `json:"url"`
	Status     BatchItemStatus `json:"status"`
	Outcome    *RenderOutcome  `json:"outcome,omitempty"`
	Error      *RenderError    `json:"error,omitempty"`
	DurationMs int64           `json:"durationMs"`
}

// BatchOutcome aggregates a whole batch. Results preserve input order.
type BatchOutcome struct {
	Results         []BatchItem `json:"results"`
	Succeeded       int         `json:"succeeded"`
	Failed          int         `json:"failed"`
	TotalDurationMs int64       `json:"totalDurationMs"`
}

// HealthStatus is the /api/health payload.
type HealthStatus struct {
	BrowserConnected bool   `json:"browserConnected"`
	UptimeSec        int64  `json:"uptimeSec"`
	MemoryBytes      uint64 `json:"memoryBytes"`
	Version          string `json:"version"`
}
