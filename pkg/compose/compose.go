// Package compose writes finished edits back into a document. For every
// changed record it paints an opaque cover rectangle over the original
// glyphs and the replacement text on top, at the position captured when the
// edit started, leaving every other part of the page untouched.
package compose

import (
	"errors"
	"fmt"
	"io"

	"github.com/WyRainBow/overtype/pkg/editstate"
)

// ErrTextEncoding reports replacement text that is not representable in the
// embedded font's encoding. The text is still painted best-effort.
var ErrTextEncoding = errors.New("replacement text not representable in the embedded font")

// Config holds compositor options.
type Config struct {
	Font         Font      // replacement text font
	Cover        RGB       // cover rectangle color
	Ink          RGB       // replacement text color
	BaselineRise float64   // fraction of the box height the baseline sits above the box bottom
	CoverPad     float64   // outward growth of the cover beyond the captured box, in document units
	Logger       io.Writer // warnings (nil = discard)
}

// DefaultConfig returns the shipped tuning: white covers, black Helvetica
// text, the baseline a fifth of the box height above the box bottom, covers
// grown 2 units outward. The baseline rise and cover pad are empirical fits
// for the default font and are meant to be adjusted per embedded font.
func DefaultConfig() Config {
	return Config{
		Font:         Font{Name: "Helvetica"},
		Cover:        White,
		Ink:          Black,
		BaselineRise: 0.2,
		CoverPad:     2,
	}
}

// Exporter bakes edit records into a new document through a Writer.
type Exporter struct {
	writer Writer
	cfg    Config
}

// New returns an Exporter drawing through w. A nil w uses the fpdf-backed
// writer; cfg is usually DefaultConfig.
func New(w Writer, cfg Config) *Exporter {
	if w == nil {
		w = FpdfWriter{}
	}
	if cfg.Font.Name == "" {
		cfg.Font.Name = "Helvetica"
	}
	if cfg.Logger == nil {
		cfg.Logger = io.Discard
	}
	return &Exporter{writer: w, cfg: cfg}
}

// Export opens original as a fresh clone, paints every changed record at its
// captured position mapped back into document units, and serializes the
// result. scale must be the zoom scale that was active when the positions
// were captured. Pages without edits receive no drawing operations. The
// records are consumed read-only, so a failed export never disturbs the
// live edit state.
func (e *Exporter) Export(original []byte, records []editstate.Record, scale float64) ([]byte, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("export scale must be positive, got %v", scale)
	}

	byPage := groupChanged(records)

	doc, err := e.writer.Open(original)
	if err != nil {
		return nil, fmt.Errorf("opening document for export: %w", err)
	}

	total, unencodable := 0, 0
	for page := 1; page <= doc.PageCount(); page++ {
		canvas, err := doc.Page(page)
		if err != nil {
			return nil, fmt.Errorf("importing page %d: %w", page, err)
		}
		recs := byPage[page]
		if len(recs) == 0 {
			continue
		}

		_, pageHeight, err := doc.PageSize(page)
		if err != nil {
			return nil, fmt.Errorf("page %d size: %w", page, err)
		}
		for _, rec := range recs {
			total++
			switch err := e.paint(canvas, rec, pageHeight, scale); {
			case errors.Is(err, ErrTextEncoding):
				unencodable++
				fmt.Fprintf(e.cfg.Logger, "edit %s: %v\n", rec.ID, err)
			case err != nil:
				return nil, fmt.Errorf("painting edit %s on page %d: %w", rec.ID, page, err)
			}
		}
	}

	if total > 0 && unencodable > total/10 {
		return nil, fmt.Errorf("character encoding issues in %d of %d edits", unencodable, total)
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing composed document: %w", err)
	}
	return out, nil
}

// paint draws one record. The capture-time device box is mapped back to
// document units by the capture scale, the cover grows CoverPad outward on
// every side, and the baseline sits BaselineRise of the box height above the
// box bottom.
func (e *Exporter) paint(c Canvas, rec editstate.Record, pageHeight, scale float64) error {
	x := rec.Pos.Left / scale
	top := rec.Pos.Top / scale
	w := rec.Pos.Width / scale
	h := rec.Pos.Height / scale
	y := pageHeight - top - h

	pad := e.cfg.CoverPad
	c.Rect(x-pad, y-pad, w+2*pad, h+2*pad, e.cfg.Cover)
	return c.Text(x, y+h*e.cfg.BaselineRise, rec.NewText, e.cfg.Font, rec.Pos.FontSize/scale, e.cfg.Ink)
}

// groupChanged buckets the records that will alter the document by page.
// Unchanged records never reach the writer, so an edit finished without
// modification exports zero drawing operations.
func groupChanged(records []editstate.Record) map[int][]editstate.Record {
	byPage := make(map[int][]editstate.Record)
	for _, r := range records {
		if !r.Changed() {
			continue
		}
		byPage[r.Page] = append(byPage[r.Page], r)
	}
	return byPage
}
