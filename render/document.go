// ABOUTME: Renders the finished report and executive summary into a standalone HTML document.
// ABOUTME: Converts the markdown output to HTML via goldmark and writes it under the output directory.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
)

// DocumentRenderer writes final report documents into a directory,
// one HTML file per run.
type DocumentRenderer struct {
	dir string
	md  goldmark.Markdown
}

// NewDocumentRenderer creates a renderer writing into dir. The
// directory is created on first write.
func NewDocumentRenderer(dir string) *DocumentRenderer {
	return &DocumentRenderer{dir: dir, md: goldmark.New()}
}

var docTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Report {{.RunID}}</title>
<style>
body { max-width: 48rem; margin: 2rem auto; padding: 0 1rem; font-family: Georgia, serif; line-height: 1.6; color: #222; }
h1, h2, h3 { font-family: Helvetica, Arial, sans-serif; }
.summary { background: #f5f5f0; border-left: 4px solid #888; padding: 1rem 1.5rem; margin-bottom: 2rem; }
.meta { color: #888; font-size: 0.85rem; }
</style>
</head>
<body>
<p class="meta">Run {{.RunID}} &middot; generated {{.Generated}}</p>
<div class="summary">
<h2>Executive Summary</h2>
{{.Summary}}
</div>
{{.Report}}
</body>
</html>
`))

type docData struct {
	RunID     string
	Generated string
	Summary   template.HTML
	Report    template.HTML
}

// WriteDocument converts the formatted report and summary from markdown
// to HTML, assembles the standalone document, and writes it to
// <dir>/<runID>.html, returning the written path.
func (r *DocumentRenderer) WriteDocument(runID, formatted, summary string) (string, error) {
	report, err := r.toHTML(formatted)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	sum, err := r.toHTML(summary)
	if err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}

	var buf bytes.Buffer
	err = docTemplate.Execute(&buf, docData{
		RunID:     runID,
		Generated: time.Now().UTC().Format(time.RFC3339),
		Summary:   sum,
		Report:    report,
	})
	if err != nil {
		return "", fmt.Errorf("execute document template: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(r.dir, runID+".html")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}

func (r *DocumentRenderer) toHTML(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
