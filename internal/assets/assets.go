// Package assets provides the embedded landing page, so the binary
// ships without external file dependencies.
package assets

import (
	"bytes"
	"html"
	"html/template"
	"regexp"
)

// versionSanitizer strips anything a build-time ldflags value should not
// contain before it reaches the page.
var versionSanitizer = regexp.MustCompile(`[^a-zA-Z0-9.\-_+]`)

// SanitizeVersion reduces a version string to safe characters. Returns
// "unknown" when nothing survives.
func SanitizeVersion(version string) string {
	sanitized := versionSanitizer.ReplaceAllString(html.EscapeString(version), "")
	if sanitized == "" {
		return "unknown"
	}
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	return sanitized
}

// IndexData feeds the landing page template.
type IndexData struct {
	Version   string
	GoVersion string
	Uptime    string
	Browser   string
	Sessions  int
}

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// RenderIndex renders the landing page. html/template escapes all
// values; the version is pre-sanitized on top of that.
func RenderIndex(data IndexData) (string, error) {
	data.Version = SanitizeVersion(data.Version)

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>PageForge</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #10141f 0%, #1b2437 100%);
            color: #e0e0e0;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
        }
        .container {
            text-align: center;
            padding: 2rem;
            background: rgba(255,255,255,0.05);
            border-radius: 16px;
            box-shadow: 0 8px 32px rgba(0,0,0,0.3);
            max-width: 520px;
        }
        h1 {
            color: #ffb454;
            margin-bottom: 0.5rem;
            font-size: 2.5rem;
        }
        .subtitle {
            color: #888;
            margin-bottom: 2rem;
        }
        .status {
            display: inline-flex;
            align-items: center;
            gap: 0.5rem;
            padding: 0.75rem 1.5rem;
            background: rgba(255, 180, 84, 0.08);
            border: 1px solid rgba(255, 180, 84, 0.3);
            border-radius: 8px;
            color: #ffb454;
            font-weight: 600;
            margin-bottom: 1.5rem;
        }
        .info {
            text-align: left;
            background: rgba(0,0,0,0.25);
            padding: 1rem;
            border-radius: 8px;
            font-family: monospace;
            font-size: 0.9rem;
        }
        .info div {
            padding: 0.25rem 0;
        }
        .label {
            color: #888;
        }
        footer {
            margin-top: 2rem;
            color: #666;
            font-size: 0.8rem;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>PageForge</h1>
        <p class="subtitle">Headless page rendering service</p>
        <div class="status">Browser: {{.Browser}}</div>
        <div class="info">
            <div><span class="label">Version:</span> {{.Version}}</div>
            <div><span class="label">Go Version:</span> {{.GoVersion}}</div>
            <div><span class="label">Uptime:</span> {{.Uptime}}</div>
            <div><span class="label">Active Sessions:</span> {{.Sessions}}</div>
        </div>
        <footer>POST /api/render &middot; GET /api/html &middot; GET /api/screenshot &middot; GET /api/pdf</footer>
    </div>
</body>
</html>`
