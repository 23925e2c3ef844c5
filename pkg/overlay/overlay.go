// Package overlay decides what sits above each text run of a rendered page:
// a clickable hotspot, a live input field, or an opaque relabeled block.
// It produces pure render-plan data; drawing the plan is the embedder's job.
package overlay

import (
	"math"

	"github.com/WyRainBow/overtype/pkg/editstate"
	"github.com/WyRainBow/overtype/pkg/measure"
	"github.com/WyRainBow/overtype/pkg/textrun"
)

// Params holds the overlay layout constants, all in device pixels.
type Params struct {
	CollisionTolerance float64 // distance within which an edit suppresses a run's hotspot
	MinFieldWidth      float64 // floor under the input field width
	FieldPadding       float64 // slack added after the measured field content
	BorderCompensation float64 // leftward shift keeping field text aligned with the page
	BlockSlack         float64 // slack added to the measured width of a committed block
	BlockLift          float64 // lift of a committed block above the original top edge
}

// DefaultParams returns the tuning of the shipped editor.
func DefaultParams() Params {
	return Params{
		CollisionTolerance: editstate.CollisionTolerance,
		MinFieldWidth:      50,
		FieldPadding:       8,
		BorderCompensation: 2,
		BlockSlack:         4,
		BlockLift:          2,
	}
}

// Hotspot is a transparent, pointer-active region over an unedited run.
// Clicking it starts an edit at Pos.
type Hotspot struct {
	Run textrun.TextRun
	Pos textrun.Position
}

// Field is the live input control of a record in edit mode.
type Field struct {
	Record                   editstate.Record
	Left, Top, Width, Height float64
}

// Block is the opaque click-to-re-edit cover of a committed record.
type Block struct {
	Record                   editstate.Record
	Left, Top, Width, Height float64
}

// Page is the overlay plan of one page: hotspots below, fields and blocks
// drawn above them.
type Page struct {
	Number   int
	Hotspots []Hotspot
	Fields   []Field
	Blocks   []Block
}

// Renderer builds overlay plans from extracted runs and edit records.
type Renderer struct {
	est    *measure.Estimator
	params Params
}

// New returns a Renderer measuring replacement text with est. A nil est gets
// a default estimator; params is usually DefaultParams.
func New(est *measure.Estimator, params Params) *Renderer {
	if est == nil {
		est = measure.New(measure.DefaultConfig())
	}
	return &Renderer{est: est, params: params}
}

// BuildPage computes the overlay plan for one page from its extracted runs
// and the store's records. Records from other pages are ignored, so both a
// page query and a full snapshot are acceptable inputs.
func (r *Renderer) BuildPage(page int, runs []textrun.TextRun, records []editstate.Record, pageHeight, scale float64) Page {
	plan := Page{Number: page}

	for _, run := range runs {
		pos := textrun.PositionOf(run, pageHeight, scale)
		if r.covered(page, pos, records) {
			continue
		}
		plan.Hotspots = append(plan.Hotspots, Hotspot{Run: run, Pos: pos})
	}

	for _, rec := range records {
		if rec.Page != page {
			continue
		}
		switch rec.State {
		case editstate.Editing:
			plan.Fields = append(plan.Fields, r.field(rec))
		case editstate.Committed:
			plan.Blocks = append(plan.Blocks, r.block(rec))
		}
	}
	return plan
}

// covered reports whether an edit record already occupies pos on the page.
func (r *Renderer) covered(page int, pos textrun.Position, records []editstate.Record) bool {
	for _, rec := range records {
		if rec.Page == page && rec.Pos.CornerWithin(pos, r.params.CollisionTolerance) {
			return true
		}
	}
	return false
}

// field sizes the input so the original glyphs stay covered while the user
// types. The width is recomputed on every keystroke and can only grow over
// the original footprint, never shrink below it.
func (r *Renderer) field(rec editstate.Record) Field {
	measured := r.est.Width(rec.NewText, rec.Pos.FontSize, rec.FontName)
	w := math.Max(measured+rec.Pos.Width, rec.Pos.Width) + r.params.FieldPadding
	if w < r.params.MinFieldWidth {
		w = r.params.MinFieldWidth
	}
	return Field{
		Record: rec,
		Left:   rec.Pos.Left - r.params.BorderCompensation,
		Top:    rec.Pos.Top,
		Width:  w,
		Height: rec.Pos.Height,
	}
}

// block covers a committed record with a non-wrapping opaque span, raised
// slightly to counter the line-height and ascent mismatch between the page
// text and the overlay.
func (r *Renderer) block(rec editstate.Record) Block {
	measured := r.est.Width(rec.NewText, rec.Pos.FontSize, rec.FontName)
	return Block{
		Record: rec,
		Left:   rec.Pos.Left,
		Top:    rec.Pos.Top - r.params.BlockLift,
		Width:  math.Max(rec.Pos.Width, measured+r.params.BlockSlack),
		Height: rec.Pos.Height,
	}
}
