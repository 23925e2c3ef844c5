package docai

import (
	"fmt"
	"math"

	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"github.com/WyRainBow/overtype/pkg/hocr"
)

// HOCRFromDocument converts a Document AI response into an hOCR document.
// Boxes are denormalized against each page's pixel dimension, and the
// text hierarchy is rebuilt from text anchor containment: blocks become
// areas, with paragraphs, lines and words nested beneath them.
func HOCRFromDocument(doc *documentaipb.Document) *hocr.Document {
	out := &hocr.Document{
		Title:    "Document OCR",
		System:   "Document AI",
		Language: dominantLanguage(doc),
	}
	for i, p := range doc.GetPages() {
		number := int(p.GetPageNumber())
		if number == 0 {
			number = i + 1
		}
		out.Pages = append(out.Pages, hocrPage(doc, p, number))
	}
	return out
}

func hocrPage(doc *documentaipb.Document, p *documentaipb.Document_Page, number int) hocr.Page {
	w := float64(p.GetDimension().GetWidth())
	h := float64(p.GetDimension().GetHeight())
	page := hocr.Page{
		ID:     fmt.Sprintf("page_%d", number),
		Number: number - 1,
		BBox:   hocr.BBox{X2: w, Y2: h},
	}

	usedPars := make(map[int]bool)
	usedLines := make(map[int]bool)

	for bi, block := range p.GetBlocks() {
		area := hocr.Area{
			ID:   fmt.Sprintf("block_%d_%d", number, bi+1),
			BBox: pixelBox(block.GetLayout(), w, h),
		}
		for pi, par := range p.GetParagraphs() {
			if !within(par.GetLayout(), block.GetLayout()) {
				continue
			}
			usedPars[pi] = true
			area.Paragraphs = append(area.Paragraphs, hocrParagraph(doc, p, par, number, pi, w, h, usedLines))
		}
		page.Areas = append(page.Areas, area)
	}
	for pi, par := range p.GetParagraphs() {
		if usedPars[pi] {
			continue
		}
		page.Paragraphs = append(page.Paragraphs, hocrParagraph(doc, p, par, number, pi, w, h, usedLines))
	}
	for li, line := range p.GetLines() {
		if usedLines[li] {
			continue
		}
		page.Lines = append(page.Lines, hocrLine(doc, p, line, number, li, w, h))
	}
	return page
}

func hocrParagraph(doc *documentaipb.Document, p *documentaipb.Document_Page,
	par *documentaipb.Document_Page_Paragraph, number, pi int, w, h float64,
	usedLines map[int]bool) hocr.Paragraph {

	out := hocr.Paragraph{
		ID:   fmt.Sprintf("par_%d_%d", number, pi+1),
		BBox: pixelBox(par.GetLayout(), w, h),
	}
	for li, line := range p.GetLines() {
		if usedLines[li] || !within(line.GetLayout(), par.GetLayout()) {
			continue
		}
		usedLines[li] = true
		out.Lines = append(out.Lines, hocrLine(doc, p, line, number, li, w, h))
	}
	return out
}

func hocrLine(doc *documentaipb.Document, p *documentaipb.Document_Page,
	line *documentaipb.Document_Page_Line, number, li int, w, h float64) hocr.Line {

	box := pixelBox(line.GetLayout(), w, h)
	out := hocr.Line{
		ID:       fmt.Sprintf("line_%d_%d", number, li+1),
		BBox:     box,
		Baseline: "0 0",
		XSize:    box.Height(),
	}
	for ti, tok := range p.GetTokens() {
		if !within(tok.GetLayout(), line.GetLayout()) {
			continue
		}
		text := tokenText(tok, doc.GetText())
		if text == "" {
			continue
		}
		out.Words = append(out.Words, hocr.Word{
			ID:         fmt.Sprintf("word_%d_%d_%d", number, li+1, ti+1),
			Text:       text,
			BBox:       pixelBox(tok.GetLayout(), w, h),
			Confidence: float64(tok.GetLayout().GetConfidence()) * 100,
		})
	}
	return out
}

// within reports whether the child's text range sits inside the parent's.
func within(child, parent *documentaipb.Document_Page_Layout) bool {
	cs, ce, ok := anchorRange(child)
	if !ok {
		return false
	}
	ps, pe, ok := anchorRange(parent)
	return ok && cs >= ps && ce <= pe
}

// pixelBox denormalizes a layout's bounding box to rounded pixels.
func pixelBox(layout *documentaipb.Document_Page_Layout, w, h float64) hocr.BBox {
	verts := layout.GetBoundingPoly().GetNormalizedVertices()
	if len(verts) < 4 {
		return hocr.BBox{}
	}
	return hocr.BBox{
		X1: math.Round(float64(verts[0].GetX()) * w),
		Y1: math.Round(float64(verts[0].GetY()) * h),
		X2: math.Round(float64(verts[2].GetX()) * w),
		Y2: math.Round(float64(verts[2].GetY()) * h),
	}
}

// dominantLanguage finds the most frequently detected language across pages
// and tokens.
func dominantLanguage(doc *documentaipb.Document) string {
	counts := make(map[string]int)
	for _, p := range doc.GetPages() {
		for _, l := range p.GetDetectedLanguages() {
			counts[l.GetLanguageCode()]++
		}
		for _, tok := range p.GetTokens() {
			for _, l := range tok.GetDetectedLanguages() {
				counts[l.GetLanguageCode()]++
			}
		}
	}
	var best string
	var n int
	for lang, c := range counts {
		if c > n {
			best, n = lang, c
		}
	}
	return best
}
