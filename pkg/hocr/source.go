package hocr

import (
	"context"
	"fmt"

	"github.com/WyRainBow/overtype/pkg/coords"
	"github.com/WyRainBow/overtype/pkg/textrun"
)

// SizeFunc maps a 1-based page number to its target dimensions in document
// units.
type SizeFunc func(page int) (w, h float64, err error)

// Source adapts a parsed hOCR document into positioned text runs. Word boxes
// are rescaled from the page's pixel space into the target document space
// and flipped to a bottom-left origin.
type Source struct {
	doc   *Document
	sizes SizeFunc
}

// NewSource wraps doc as a run source. A nil sizes func keeps each page's
// own pixel space, converted to document units at screen resolution.
func NewSource(doc *Document, sizes SizeFunc) *Source {
	return &Source{doc: doc, sizes: sizes}
}

// PageCount reports the number of pages in the wrapped document.
func (s *Source) PageCount() int { return len(s.doc.Pages) }

// PageRuns returns the runs of the 1-based page in reading order. The last
// word of each hOCR line carries the end-of-line flag.
func (s *Source) PageRuns(ctx context.Context, page int) ([]textrun.TextRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > len(s.doc.Pages) {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, len(s.doc.Pages))
	}
	p := s.doc.Pages[page-1]

	w, h := p.BBox.Width()/coords.PixelsPerUnit, p.BBox.Height()/coords.PixelsPerUnit
	if s.sizes != nil {
		var err error
		w, h, err = s.sizes(page)
		if err != nil {
			return nil, fmt.Errorf("page %d size: %w", page, err)
		}
	}
	sx, sy := 1/coords.PixelsPerUnit, 1/coords.PixelsPerUnit
	if p.BBox.Width() > 0 {
		sx = w / p.BBox.Width()
	}
	if p.BBox.Height() > 0 {
		sy = h / p.BBox.Height()
	}

	var runs []textrun.TextRun
	for _, line := range p.AllLines() {
		for i, word := range line.Words {
			fs := word.BBox.Height() * sy
			if line.XSize > 0 {
				fs = line.XSize * sy
			}
			x := word.BBox.X1 * sx
			y := h - word.BBox.Y2*sy
			runs = append(runs, textrun.TextRun{
				Text:      word.Text,
				Dir:       textrun.DirectionOf(word.Text),
				Width:     word.BBox.Width() * sx,
				Height:    fs,
				Transform: coords.Matrix{fs, 0, 0, fs, x, y},
				EndOfLine: i == len(line.Words)-1,
			})
		}
	}
	return runs, nil
}

// RunPage is one page of runs to assemble into an hOCR document.
type RunPage struct {
	Number int     // 1-based page number
	Width  float64 // page width in document units
	Height float64 // page height in document units
	Runs   []textrun.TextRun
}

// FromRuns assembles an hOCR document from positioned text runs, the inverse
// of Source. Boxes are emitted in top-down pixels at screen resolution, one
// word per run and one line per end-of-line group.
func FromRuns(pages []RunPage) *Document {
	doc := &Document{System: "overtype"}
	px := coords.PixelsPerUnit

	for _, pr := range pages {
		page := Page{
			ID:     fmt.Sprintf("page_%d", pr.Number),
			Number: pr.Number - 1,
			BBox:   BBox{X2: pr.Width * px, Y2: pr.Height * px},
		}

		var lines []Line
		var cur Line
		flush := func() {
			if len(cur.Words) > 0 {
				cur.ID = fmt.Sprintf("line_%d_%d", pr.Number, len(lines)+1)
				cur.Baseline = "0 0"
				lines = append(lines, cur)
			}
			cur = Line{}
		}
		for i, run := range pr.Runs {
			fs := run.FontSize()
			x1 := run.Transform[4] * px
			y2 := (pr.Height - run.Transform[5]) * px
			box := BBox{X1: x1, Y1: y2 - fs*px, X2: x1 + run.Width*px, Y2: y2}
			cur.Words = append(cur.Words, Word{
				ID:         fmt.Sprintf("word_%d_%d", pr.Number, i+1),
				Text:       run.Text,
				BBox:       box,
				Confidence: 100,
			})
			cur.BBox = cur.BBox.Union(box)
			if fsPx := fs * px; fsPx > cur.XSize {
				cur.XSize = fsPx
			}
			if run.EndOfLine {
				flush()
			}
		}
		flush()

		if len(lines) > 0 {
			par := Paragraph{ID: fmt.Sprintf("par_%d_1", pr.Number), Lines: lines}
			for _, l := range lines {
				par.BBox = par.BBox.Union(l.BBox)
			}
			area := Area{
				ID:         fmt.Sprintf("block_%d_1", pr.Number),
				BBox:       par.BBox,
				Paragraphs: []Paragraph{par},
			}
			page.Areas = []Area{area}
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}
