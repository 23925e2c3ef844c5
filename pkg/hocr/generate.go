package hocr

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"text/template"
)

//go:embed templates/hocr.tmpl
var templateFS embed.FS

// Generate renders a Document back into hOCR HTML.
func Generate(doc *Document) (string, error) {
	tmpl, err := template.New("hocr.tmpl").Funcs(template.FuncMap{
		"bbox": func(b BBox) string {
			return fmt.Sprintf("%.0f %.0f %.0f %.0f", b.X1, b.Y1, b.X2, b.Y2)
		},
		"num": func(f float64) string {
			return strconv.FormatFloat(f, 'f', -1, 64)
		},
	}).ParseFS(templateFS, "templates/hocr.tmpl")
	if err != nil {
		return "", fmt.Errorf("parsing hOCR template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("rendering hOCR: %w", err)
	}
	return buf.String(), nil
}
