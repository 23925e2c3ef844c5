package measure

import (
	"fmt"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

// coreSurface measures with the PDF core font metrics through an off-screen
// fpdf document. Core metrics are exact for Latin-1 text; anything outside
// Latin-1 is reported as unmeasurable so the caller can fall back.
type coreSurface struct {
	pdf *fpdf.Fpdf
}

// NewCoreSurface returns a Surface backed by the built-in Helvetica, Times
// and Courier metrics. The surface holds one hidden fpdf document for its
// whole lifetime.
func NewCoreSurface() Surface {
	return &coreSurface{pdf: fpdf.New("P", "pt", "", "")}
}

func (s *coreSurface) TextWidth(text string, size float64, family string) (float64, error) {
	// fpdf errors are sticky, so the family is always mapped onto a core
	// font before touching the document.
	latin1, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		return 0, fmt.Errorf("text not representable in a core font: %w", err)
	}
	s.pdf.SetFont(coreFamily(family), "", size)
	return s.pdf.GetStringWidth(latin1), nil
}

// coreFamily maps an arbitrary font family name onto one of the PDF core
// fonts by keyword.
func coreFamily(family string) string {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "courier"), strings.Contains(f, "mono"):
		return "Courier"
	case strings.Contains(f, "sans"), strings.Contains(f, "helvetica"), strings.Contains(f, "arial"):
		return "Helvetica"
	case strings.Contains(f, "times"), strings.Contains(f, "serif"), strings.Contains(f, "roman"):
		return "Times"
	default:
		return "Helvetica"
	}
}
