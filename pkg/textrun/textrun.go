// Package textrun defines the text-run model shared between run sources
// (PDF content extraction, hOCR, Document AI) and the editing layers built
// on top of them.
package textrun

import (
	"context"
	"math"

	"github.com/WyRainBow/overtype/pkg/coords"
)

// Direction is the reading direction of a run.
type Direction string

// Reading directions.
const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// DirectionOf infers the reading direction of text from its first strongly
// directional rune.
func DirectionOf(text string) Direction {
	for _, r := range text {
		switch {
		case r >= 0x0590 && r <= 0x08FF, r >= 0xFB1D && r <= 0xFDFF, r >= 0xFE70 && r <= 0xFEFF:
			return RTL
		case r >= 'A' && r <= 'z', r >= 0x00C0 && r < 0x0590:
			return LTR
		}
	}
	return LTR
}

// TextRun is one contiguous span of text on a page as reported by a run
// source, with its own affine placement. Runs are recomputed every time a
// page is loaded and are read-only to the editing layers.
type TextRun struct {
	Text      string        // run content
	Dir       Direction     // reading direction
	Width     float64       // advance width in document units
	Height    float64       // glyph box height in document units
	Transform coords.Matrix // placement: the scale carries the font size, (e, f) the baseline origin
	FontName  string        // source font identifier
	EndOfLine bool          // run ends its line
}

// FontSize returns the effective font size encoded in the run's transform,
// falling back to the glyph box height when the transform carries no scale.
func (r TextRun) FontSize() float64 {
	if fs := r.Transform.ScaleY(); fs > 0 {
		return fs
	}
	if fs := r.Transform.ScaleX(); fs > 0 {
		return fs
	}
	return r.Height
}

// Position is a run's on-screen box in device pixels, derived once per
// (page height, scale) pair. Positions are never mutated in place; a scale
// or page change rederives them.
type Position struct {
	Left     float64 // distance from the viewport left edge
	Top      float64 // distance from the viewport top edge
	Width    float64
	Height   float64
	FontSize float64
}

// PositionOf derives the device-pixel box of a run on a page of the given
// height in document units at the given zoom scale. The baseline origin is
// lifted to the top edge of the glyph box:
//
//	top = (pageHeight − y − fontSize) · scale
func PositionOf(r TextRun, pageHeight, scale float64) Position {
	fs := r.FontSize()
	h := fs
	if h == 0 {
		h = r.Height
	}
	return Position{
		Left:     r.Transform[4] * scale,
		Top:      (pageHeight - r.Transform[5] - fs) * scale,
		Width:    r.Width * scale,
		Height:   h * scale,
		FontSize: fs * scale,
	}
}

// Contains reports whether the device point (x, y) falls inside the box.
func (p Position) Contains(x, y float64) bool {
	return x >= p.Left && x <= p.Left+p.Width && y >= p.Top && y <= p.Top+p.Height
}

// CornerWithin reports whether the top-left corners of p and q lie within
// tol pixels of each other on both axes.
func (p Position) CornerWithin(q Position, tol float64) bool {
	return math.Abs(p.Left-q.Left) <= tol && math.Abs(p.Top-q.Top) <= tol
}

// Source yields the text runs of one page. The editing layers treat the
// returned slice as append-only input for a single render pass.
type Source interface {
	// PageRuns returns the runs of the 1-based page in reading order.
	PageRuns(ctx context.Context, page int) ([]TextRun, error)
}
