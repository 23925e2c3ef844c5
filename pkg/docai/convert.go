package docai

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"github.com/WyRainBow/overtype/pkg/coords"
	"github.com/WyRainBow/overtype/pkg/textrun"
)

// SizeFunc maps a 1-based page number to its dimensions in document units.
type SizeFunc func(page int) (w, h float64, err error)

// Source adapts a Document AI response into positioned text runs. Normalized
// token boxes are projected onto the target page size and flipped to a
// bottom-left origin.
type Source struct {
	doc   *documentaipb.Document
	sizes SizeFunc
}

// NewSource wraps a processed document. A nil sizes func projects onto each
// page's own dimension, converted to document units at screen resolution.
func NewSource(doc *documentaipb.Document, sizes SizeFunc) *Source {
	return &Source{doc: doc, sizes: sizes}
}

// PageCount reports the number of pages in the response.
func (s *Source) PageCount() int { return len(s.doc.GetPages()) }

// PageRuns converts a page's tokens into runs, one run per token, with the
// end-of-line flag on each line's last token.
func (s *Source) PageRuns(ctx context.Context, page int) ([]textrun.TextRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages := s.doc.GetPages()
	if page < 1 || page > len(pages) {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, len(pages))
	}
	p := pages[page-1]

	w, h, err := s.pageSize(page, p)
	if err != nil {
		return nil, err
	}

	lineEnds := lineEndTokens(p)
	var runs []textrun.TextRun
	for i, tok := range p.GetTokens() {
		text := tokenText(tok, s.doc.GetText())
		if text == "" {
			continue
		}
		box, ok := normalizedBox(tok.GetLayout())
		if !ok {
			continue
		}
		fs := (box.y2 - box.y1) * h
		x := box.x1 * w
		y := h - box.y2*h
		runs = append(runs, textrun.TextRun{
			Text:      text,
			Dir:       textrun.DirectionOf(text),
			Width:     (box.x2 - box.x1) * w,
			Height:    fs,
			Transform: coords.Matrix{fs, 0, 0, fs, x, y},
			EndOfLine: lineEnds[i],
		})
	}
	return runs, nil
}

func (s *Source) pageSize(page int, p *documentaipb.Document_Page) (w, h float64, err error) {
	if s.sizes != nil {
		return s.sizes(page)
	}
	dim := p.GetDimension()
	return float64(dim.GetWidth()) / coords.PixelsPerUnit,
		float64(dim.GetHeight()) / coords.PixelsPerUnit, nil
}

// PageImage returns the rendered page image Document AI attached to the
// response, when present.
func PageImage(doc *documentaipb.Document, page int) ([]byte, error) {
	pages := doc.GetPages()
	if page < 1 || page > len(pages) {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, len(pages))
	}
	content := pages[page-1].GetImage().GetContent()
	if len(content) == 0 {
		return nil, fmt.Errorf("page %d carries no image", page)
	}
	return content, nil
}

// tokenText materializes a token's text, dropping the trailing whitespace a
// detected break leaves behind.
func tokenText(tok *documentaipb.Document_Page_Token, fullText string) string {
	text := layoutText(tok.GetLayout(), fullText)
	if tok.GetDetectedBreak().GetType() != documentaipb.Document_Page_Token_DetectedBreak_TYPE_UNSPECIFIED {
		if runes := []rune(text); len(runes) > 0 {
			switch runes[len(runes)-1] {
			case ' ', '\n', '\r', '\t':
				text = string(runes[:len(runes)-1])
			}
		}
	}
	return strings.TrimSpace(text)
}

// layoutText resolves a layout's text anchor against the full document text.
// Segment indices are rune offsets.
func layoutText(layout *documentaipb.Document_Page_Layout, fullText string) string {
	anchor := layout.GetTextAnchor()
	if anchor == nil {
		return ""
	}
	runes := []rune(fullText)
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 {
			start = 0
		}
		if end > len(runes) {
			end = len(runes)
		}
		if start > end {
			start = end
		}
		b.WriteString(string(runes[start:end]))
	}
	return b.String()
}

// lineEndTokens marks the index of each line's last token, matched through
// text anchor containment.
func lineEndTokens(p *documentaipb.Document_Page) map[int]bool {
	ends := make(map[int]bool)
	for _, line := range p.GetLines() {
		ls, le, ok := anchorRange(line.GetLayout())
		if !ok {
			continue
		}
		last := -1
		for i, tok := range p.GetTokens() {
			ts, te, ok := anchorRange(tok.GetLayout())
			if ok && ts >= ls && te <= le {
				last = i
			}
		}
		if last >= 0 {
			ends[last] = true
		}
	}
	return ends
}

func anchorRange(layout *documentaipb.Document_Page_Layout) (start, end int64, ok bool) {
	segs := layout.GetTextAnchor().GetTextSegments()
	if len(segs) == 0 {
		return 0, 0, false
	}
	return segs[0].GetStartIndex(), segs[0].GetEndIndex(), true
}

type nbox struct {
	x1, y1, x2, y2 float64
}

// normalizedBox reads a layout's normalized bounding box, top-left and
// bottom-right corners.
func normalizedBox(layout *documentaipb.Document_Page_Layout) (nbox, bool) {
	verts := layout.GetBoundingPoly().GetNormalizedVertices()
	if len(verts) < 4 {
		return nbox{}, false
	}
	return nbox{
		x1: float64(verts[0].GetX()),
		y1: float64(verts[0].GetY()),
		x2: float64(verts[2].GetX()),
		y2: float64(verts[2].GetY()),
	}, true
}
