// Package editor ties the pieces of an editing session together: one open
// document, a run source, the edit store, the overlay planner and the export
// compositor. A UI drives it with page renders and pointer events; the
// session keeps the edit state consistent across them.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/WyRainBow/overtype/pkg/compose"
	"github.com/WyRainBow/overtype/pkg/editstate"
	"github.com/WyRainBow/overtype/pkg/measure"
	"github.com/WyRainBow/overtype/pkg/overlay"
	"github.com/WyRainBow/overtype/pkg/pdfdoc"
	"github.com/WyRainBow/overtype/pkg/textrun"
)

var (
	// ErrNoDocument reports an operation on a session with nothing open.
	ErrNoDocument = errors.New("no document open")

	// ErrSuperseded reports a render that lost to a newer request for the
	// same page. It is routine during rapid navigation and zooming.
	ErrSuperseded = errors.New("render superseded by a newer request")
)

// IsBenign reports whether a render error is an expected interruption rather
// than a failure. Superseded and cancelled renders are not surfaced to the
// user.
func IsBenign(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled)
}

// Rasterizer turns a page into a bitmap for display. Implementations live
// outside the core; the session forwards their output untouched.
type Rasterizer interface {
	RenderPage(ctx context.Context, page int, scale, rotation float64) (image.Image, error)
}

// Config holds the session wiring. Zero values fall back to the defaults of
// the package that owns each concern.
type Config struct {
	Load       pdfdoc.Config      // document loading and retry policy
	Overlay    overlay.Params     // overlay layout tuning
	Compose    compose.Config     // export compositor tuning
	Scale      float64            // zoom scale, device pixels per document unit (0 = 1)
	Rotation   float64            // page rotation handed to the rasterizer, in degrees
	Estimator  *measure.Estimator // text measurement (nil = heuristic estimator)
	Rasterizer Rasterizer         // page bitmaps (nil = views carry no image)
	Writer     compose.Writer     // export backend (nil = fpdf)
	Logger     io.Writer          // diagnostics (nil = discard)
}

// DefaultConfig returns the shipped session tuning at scale 1.
func DefaultConfig() Config {
	return Config{
		Load:    pdfdoc.DefaultConfig(),
		Overlay: overlay.DefaultParams(),
		Compose: compose.DefaultConfig(),
		Scale:   1,
	}
}

// PageView is the result of one page render: the page geometry in document
// units, the overlay plan in device pixels and, when a rasterizer is
// configured, the page bitmap.
type PageView struct {
	Page    int
	Width   float64
	Height  float64
	Scale   float64
	Image   image.Image
	Overlay overlay.Page
}

// Session is one document editing session. The zoom scale is fixed for the
// session's lifetime so that every stored position shares the capture scale
// the exporter maps back through; viewing at another zoom is a new session.
// Safe for concurrent use.
type Session struct {
	cfg     Config
	planner *overlay.Renderer
	store   *editstate.Store

	mu      sync.Mutex
	doc     *pdfdoc.Document
	source  textrun.Source
	gen     map[int]uint64
	cancels map[int]context.CancelFunc
	runs    map[int][]textrun.TextRun
	heights map[int]float64
}

// NewSession returns an idle session; Open loads a document into it.
func NewSession(cfg Config) *Session {
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = io.Discard
	}
	if cfg.Load.Logger == nil {
		cfg.Load.Logger = cfg.Logger
	}
	if cfg.Compose.Logger == nil {
		cfg.Compose.Logger = cfg.Logger
	}
	if cfg.Overlay == (overlay.Params{}) {
		cfg.Overlay = overlay.DefaultParams()
	}
	return &Session{
		cfg:     cfg,
		planner: overlay.New(cfg.Estimator, cfg.Overlay),
		store:   editstate.NewStore(),
		gen:     make(map[int]uint64),
		cancels: make(map[int]context.CancelFunc),
		runs:    make(map[int][]textrun.TextRun),
		heights: make(map[int]float64),
	}
}

// Open loads a document from the first source that delivers one. Any
// previously open document is destroyed first and its in-flight renders
// cancelled. Edits survive a reload of the same bytes; opening a different
// document clears the store. The run source resets to the new document.
func (s *Session) Open(ctx context.Context, sources ...pdfdoc.Source) error {
	s.mu.Lock()
	var prev []byte
	if s.doc != nil {
		prev, _ = s.doc.Bytes()
		s.doc.Destroy()
		s.doc, s.source = nil, nil
	}
	s.dropRendersLocked()
	s.mu.Unlock()

	doc, err := pdfdoc.Load(ctx, s.cfg.Load, sources...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := doc.Bytes()
	if prev == nil || !bytes.Equal(prev, data) {
		s.store.Clear()
	}
	s.doc = doc
	s.source = doc
	return nil
}

// SetSource overrides where page text comes from. Scanned documents whose
// text lives in an OCR result pass an hocr or docai source here; nil
// restores extraction from the document itself.
func (s *Session) SetSource(src textrun.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == nil && s.doc != nil {
		src = s.doc
	}
	s.source = src
}

// Document returns the open document, or nil.
func (s *Session) Document() *pdfdoc.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Scale returns the session's fixed zoom scale.
func (s *Session) Scale() float64 {
	return s.cfg.Scale
}

// Close cancels in-flight renders, destroys the document and drops every
// edit.
func (s *Session) Close() {
	s.mu.Lock()
	s.dropRendersLocked()
	doc := s.doc
	s.doc, s.source = nil, nil
	s.mu.Unlock()
	if doc != nil {
		doc.Destroy()
	}
	s.store.Clear()
}

// RenderPage produces the view of one page. Each call supersedes any render
// still in flight for the same page: the older call is cancelled and returns
// ErrSuperseded. Text extraction completes before the overlay plan is built,
// so hotspots always describe the page state the plan was computed from. A
// page whose extraction fails renders without hotspots; the failure is
// logged, not returned.
func (s *Session) RenderPage(ctx context.Context, page int) (*PageView, error) {
	s.mu.Lock()
	doc, src := s.doc, s.source
	if doc == nil {
		s.mu.Unlock()
		return nil, ErrNoDocument
	}
	s.gen[page]++
	gen := s.gen[page]
	if cancel := s.cancels[page]; cancel != nil {
		cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	s.cancels[page] = cancel
	s.mu.Unlock()
	defer s.releaseRender(page, gen, cancel)

	width, height, err := doc.PageSize(page)
	if err != nil {
		return nil, err
	}

	runs, err := src.PageRuns(rctx, page)
	if err != nil {
		switch {
		case s.stale(page, gen):
			return nil, ErrSuperseded
		case rctx.Err() != nil:
			return nil, rctx.Err()
		default:
			fmt.Fprintf(s.cfg.Logger, "page %d text extraction failed, continuing without hotspots: %v\n", page, err)
			runs = nil
		}
	}
	if s.stale(page, gen) {
		return nil, ErrSuperseded
	}

	plan := s.planner.BuildPage(page, runs, s.store.Snapshot(), height, s.cfg.Scale)

	var img image.Image
	if s.cfg.Rasterizer != nil {
		img, err = s.cfg.Rasterizer.RenderPage(rctx, page, s.cfg.Scale, s.cfg.Rotation)
		if err != nil {
			switch {
			case s.stale(page, gen):
				return nil, ErrSuperseded
			case rctx.Err() != nil:
				return nil, rctx.Err()
			default:
				return nil, fmt.Errorf("rasterizing page %d: %w", page, err)
			}
		}
	}

	s.mu.Lock()
	if s.gen[page] != gen {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	s.runs[page] = runs
	s.heights[page] = height
	s.mu.Unlock()

	return &PageView{
		Page:    page,
		Width:   width,
		Height:  height,
		Scale:   s.cfg.Scale,
		Image:   img,
		Overlay: plan,
	}, nil
}

// ClickAt starts or resumes an edit at a device-pixel point on a rendered
// page. The hit test runs over the page's last rendered runs; a point over
// no run reports false. Clicking a run that is already being edited resumes
// that record instead of duplicating it.
func (s *Session) ClickAt(page int, x, y float64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	height, ok := s.heights[page]
	if !ok {
		return "", false
	}
	for _, run := range s.runs[page] {
		pos := textrun.PositionOf(run, height, s.cfg.Scale)
		if pos.Contains(x, y) {
			return s.store.Start(page, run.Text, pos, run.FontName), true
		}
	}
	return "", false
}

// Type replaces the active record's replacement text with the input field's
// current content. It reports false when nothing is being edited.
func (s *Session) Type(text string) bool {
	rec, ok := s.store.Active()
	if !ok {
		return false
	}
	s.store.Update(rec.ID, text)
	return true
}

// FinishActive leaves edit mode on the active record and returns its id.
// A record finished without change disappears from the store.
func (s *Session) FinishActive() (string, bool) {
	rec, ok := s.store.Active()
	if !ok {
		return "", false
	}
	s.store.Finish(rec.ID)
	return rec.ID, true
}

// CancelActive abandons the active record, discarding its text.
func (s *Session) CancelActive() bool {
	rec, ok := s.store.Active()
	if !ok {
		return false
	}
	s.store.Cancel(rec.ID)
	return true
}

// DeleteEdit removes a record by id. Unknown ids are no-ops.
func (s *Session) DeleteEdit(id string) {
	s.store.Delete(id)
}

// ReactivateAt returns the committed record under a device-pixel point to
// edit mode. It reports false when the point covers no record.
func (s *Session) ReactivateAt(page int, x, y float64) (string, bool) {
	for _, rec := range s.store.ByPage(page) {
		if rec.Pos.Contains(x, y) {
			s.store.Reactivate(rec.ID)
			return rec.ID, true
		}
	}
	return "", false
}

// Records returns a copy of every edit record in insertion order.
func (s *Session) Records() []editstate.Record {
	return s.store.Snapshot()
}

// Export bakes the session's edits into a fresh copy of the document and
// returns its bytes. The live edit state is read, never written, so a failed
// export leaves the session intact.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return nil, ErrNoDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	original, err := doc.Bytes()
	if err != nil {
		return nil, err
	}
	exp := compose.New(s.cfg.Writer, s.cfg.Compose)
	return exp.Export(original, s.store.Snapshot(), s.cfg.Scale)
}

// stale reports whether a newer render has claimed the page.
func (s *Session) stale(page int, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[page] != gen
}

// releaseRender retires a finished render's cancel func unless a newer
// render has already replaced it.
func (s *Session) releaseRender(page int, gen uint64, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[page] == gen {
		delete(s.cancels, page)
	}
}

// dropRendersLocked cancels every in-flight render and clears the page
// caches. Callers hold s.mu.
func (s *Session) dropRendersLocked() {
	for page, cancel := range s.cancels {
		cancel()
		delete(s.cancels, page)
	}
	s.gen = make(map[int]uint64)
	s.runs = make(map[int][]textrun.TextRun)
	s.heights = make(map[int]float64)
}
