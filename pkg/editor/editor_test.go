package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/WyRainBow/overtype/pkg/compose"
	"github.com/WyRainBow/overtype/pkg/coords"
	"github.com/WyRainBow/overtype/pkg/editstate"
	"github.com/WyRainBow/overtype/pkg/pdfdoc"
	"github.com/WyRainBow/overtype/pkg/textrun"
)

// acmeContent paints "Acme Corp" at 12pt with its baseline at (100, 700) on
// a 612x792 page, so the run's device box at scale 1 is {100, 80, 64.8, 12}.
const acmeContent = "BT /F1 12 Tf 1 0 0 1 100 700 Tm (Acme Corp) Tj ET"

var approx = cmpopts.EquateApprox(0, 1e-9)

// buildPDF assembles a one-page document around the given content stream,
// computing the cross-reference offsets from the buffer as it grows.
func buildPDF(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func testSession(t *testing.T, cfg Config, content string) (*Session, []byte) {
	t.Helper()
	data := buildPDF(t, content)
	cfg.Load.RetryDelay = time.Millisecond
	s := NewSession(cfg)
	if err := s.Open(context.Background(), pdfdoc.FromBytes(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s, data
}

// mustEdit renders page 1 and commits an "Acme Corp" -> "Globex Inc" edit.
func mustEdit(t *testing.T, s *Session) string {
	t.Helper()
	if _, err := s.RenderPage(context.Background(), 1); err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	id, ok := s.ClickAt(1, 110, 85)
	if !ok {
		t.Fatal("ClickAt found no run")
	}
	if !s.Type("Globex Inc") {
		t.Fatal("Type without active record")
	}
	if _, ok := s.FinishActive(); !ok {
		t.Fatal("FinishActive without active record")
	}
	return id
}

func acmeRun() textrun.TextRun {
	return textrun.TextRun{
		Text:      "Acme Corp",
		Dir:       textrun.LTR,
		Width:     64.8,
		Height:    12,
		Transform: coords.Matrix{12, 0, 0, 12, 100, 700},
		FontName:  "Helvetica",
		EndOfLine: true,
	}
}

// gateSource blocks its first extraction until the render is cancelled, then
// serves normally.
type gateSource struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
}

func (g *gateSource) PageRuns(ctx context.Context, page int) ([]textrun.TextRun, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []textrun.TextRun{acmeRun()}, nil
}

type failSource struct{}

func (failSource) PageRuns(context.Context, int) ([]textrun.TextRun, error) {
	return nil, errors.New("scanner offline")
}

type drawOp struct {
	Kind string // "rect" or "text"
	Page int
	X, Y float64
	W, H float64
	Text string
	Size float64
	Fill compose.RGB
}

type opWriter struct {
	pages         int
	width, height float64
	openErr       error
	doc           *opDoc // last opened document
}

func (w *opWriter) Open(original []byte) (compose.Doc, error) {
	if w.openErr != nil {
		return nil, w.openErr
	}
	w.doc = &opDoc{writer: w}
	return w.doc, nil
}

type opDoc struct {
	writer *opWriter
	ops    []drawOp
}

func (d *opDoc) PageCount() int { return d.writer.pages }

func (d *opDoc) PageSize(page int) (float64, float64, error) {
	return d.writer.width, d.writer.height, nil
}

func (d *opDoc) Page(page int) (compose.Canvas, error) {
	return opCanvas{doc: d, page: page}, nil
}

func (d *opDoc) Bytes() ([]byte, error) { return []byte("composed"), nil }

type opCanvas struct {
	doc  *opDoc
	page int
}

func (c opCanvas) Rect(x, y, w, h float64, fill compose.RGB) {
	c.doc.ops = append(c.doc.ops, drawOp{Kind: "rect", Page: c.page, X: x, Y: y, W: w, H: h, Fill: fill})
}

func (c opCanvas) Text(x, y float64, s string, font compose.Font, size float64, fill compose.RGB) error {
	c.doc.ops = append(c.doc.ops, drawOp{Kind: "text", Page: c.page, X: x, Y: y, Text: s, Size: size, Fill: fill})
	return nil
}

type fakeRaster struct {
	mu       sync.Mutex
	page     int
	scale    float64
	rotation float64
	err      error
}

func (f *fakeRaster) RenderPage(ctx context.Context, page int, scale, rotation float64) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page, f.scale, f.rotation = page, scale, rotation
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func TestEditLifecycle(t *testing.T) {
	w := &opWriter{pages: 1, width: 612, height: 792}
	cfg := DefaultConfig()
	cfg.Writer = w
	s, _ := testSession(t, cfg, acmeContent)
	ctx := context.Background()

	view, err := s.RenderPage(ctx, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if view.Width != 612 || view.Height != 792 || view.Scale != 1 {
		t.Errorf("view geometry = %v x %v at %v", view.Width, view.Height, view.Scale)
	}
	if len(view.Overlay.Hotspots) != 1 {
		t.Fatalf("got %d hotspots, want 1", len(view.Overlay.Hotspots))
	}
	wantPos := textrun.Position{Left: 100, Top: 80, Width: 64.8, Height: 12, FontSize: 12}
	if diff := cmp.Diff(wantPos, view.Overlay.Hotspots[0].Pos, approx); diff != "" {
		t.Errorf("hotspot position (-want +got):\n%s", diff)
	}

	id, ok := s.ClickAt(1, 110, 85)
	if !ok {
		t.Fatal("ClickAt found no run")
	}
	if !s.Type("Globex Inc") {
		t.Fatal("Type without active record")
	}
	if fid, ok := s.FinishActive(); !ok || fid != id {
		t.Fatalf("FinishActive = %q, %v, want %q", fid, ok, id)
	}

	recs := s.Records()
	if len(recs) != 1 || recs[0].State != editstate.Committed || recs[0].NewText != "Globex Inc" {
		t.Fatalf("records = %+v", recs)
	}

	// The edited run no longer exposes a hotspot; a block covers it instead.
	view, err = s.RenderPage(ctx, 1)
	if err != nil {
		t.Fatalf("RenderPage after edit: %v", err)
	}
	if len(view.Overlay.Hotspots) != 0 || len(view.Overlay.Blocks) != 1 {
		t.Errorf("overlay after edit = %d hotspots, %d blocks", len(view.Overlay.Hotspots), len(view.Overlay.Blocks))
	}

	out, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if string(out) != "composed" {
		t.Errorf("Export bytes = %q", out)
	}
	wantOps := []drawOp{
		{Kind: "rect", Page: 1, X: 98, Y: 698, W: 68.8, H: 16, Fill: compose.White},
		{Kind: "text", Page: 1, X: 100, Y: 702.4, Text: "Globex Inc", Size: 12, Fill: compose.Black},
	}
	if diff := cmp.Diff(wantOps, w.doc.ops, approx); diff != "" {
		t.Errorf("draw ops (-want +got):\n%s", diff)
	}
}

func TestRenderSupersededByNewerRequest(t *testing.T) {
	s, _ := testSession(t, DefaultConfig(), acmeContent)
	src := &gateSource{entered: make(chan struct{})}
	s.SetSource(src)

	type result struct {
		view *PageView
		err  error
	}
	done := make(chan result, 1)
	go func() {
		v, err := s.RenderPage(context.Background(), 1)
		done <- result{v, err}
	}()
	<-src.entered

	view, err := s.RenderPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if len(view.Overlay.Hotspots) != 1 {
		t.Errorf("second render got %d hotspots, want 1", len(view.Overlay.Hotspots))
	}

	r := <-done
	if !errors.Is(r.err, ErrSuperseded) {
		t.Errorf("first render error = %v, want ErrSuperseded", r.err)
	}
	if !IsBenign(r.err) {
		t.Error("superseded render reported as a real failure")
	}
	if r.view != nil {
		t.Error("superseded render returned a view")
	}
}

func TestRenderCancelled(t *testing.T) {
	s, _ := testSession(t, DefaultConfig(), acmeContent)
	src := &gateSource{entered: make(chan struct{})}
	s.SetSource(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.RenderPage(ctx, 1)
		done <- err
	}()
	<-src.entered
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled render error = %v, want context.Canceled", err)
	}
	if !IsBenign(err) {
		t.Error("cancelled render reported as a real failure")
	}
}

func TestExtractionFailureDegrades(t *testing.T) {
	var log bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = &log
	s, _ := testSession(t, cfg, acmeContent)
	mustEdit(t, s)

	s.SetSource(failSource{})
	view, err := s.RenderPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("degraded render returned error: %v", err)
	}
	if len(view.Overlay.Hotspots) != 0 {
		t.Errorf("degraded page still has %d hotspots", len(view.Overlay.Hotspots))
	}
	if len(view.Overlay.Blocks) != 1 {
		t.Errorf("degraded page lost its edit block: %+v", view.Overlay)
	}
	if !strings.Contains(log.String(), "without hotspots") {
		t.Errorf("extraction failure not logged, log = %q", log.String())
	}
}

func TestOpenPreservesEditsAcrossReload(t *testing.T) {
	s, data := testSession(t, DefaultConfig(), acmeContent)
	mustEdit(t, s)
	ctx := context.Background()

	if err := s.Open(ctx, pdfdoc.FromBytes(data)); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(s.Records()) != 1 {
		t.Error("reload of the same document dropped the edits")
	}

	other := buildPDF(t, "BT /F1 14 Tf 1 0 0 1 72 720 Tm (Initech) Tj ET")
	if err := s.Open(ctx, pdfdoc.FromBytes(other)); err != nil {
		t.Fatalf("open other: %v", err)
	}
	if len(s.Records()) != 0 {
		t.Error("opening a different document kept stale edits")
	}
}

func TestOpenDestroysPreviousDocument(t *testing.T) {
	s, data := testSession(t, DefaultConfig(), acmeContent)
	prev := s.Document()

	if err := s.Open(context.Background(), pdfdoc.FromBytes(data)); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := prev.Bytes(); !errors.Is(err, pdfdoc.ErrDestroyed) {
		t.Errorf("previous document still alive, Bytes err = %v", err)
	}
	if s.Document() == prev {
		t.Error("session still points at the destroyed document")
	}
}

func TestClickAndTypeWithoutTargets(t *testing.T) {
	s, _ := testSession(t, DefaultConfig(), acmeContent)

	// Before any render there is nothing to hit.
	if _, ok := s.ClickAt(1, 110, 85); ok {
		t.Error("click before render hit a run")
	}

	if _, err := s.RenderPage(context.Background(), 1); err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if _, ok := s.ClickAt(1, 400, 400); ok {
		t.Error("click off the text hit a run")
	}
	if s.Type("x") {
		t.Error("Type succeeded with no active record")
	}
	if s.CancelActive() {
		t.Error("CancelActive succeeded with no active record")
	}
	if _, ok := s.FinishActive(); ok {
		t.Error("FinishActive succeeded with no active record")
	}
}

func TestClickResumesExistingEdit(t *testing.T) {
	s, _ := testSession(t, DefaultConfig(), acmeContent)
	id := mustEdit(t, s)

	again, ok := s.ClickAt(1, 105, 82)
	if !ok || again != id {
		t.Fatalf("ClickAt on edited run = %q, %v, want %q", again, ok, id)
	}
	if recs := s.Records(); len(recs) != 1 || recs[0].State != editstate.Editing {
		t.Errorf("records after resume = %+v", recs)
	}
}

func TestReactivateAndDelete(t *testing.T) {
	s, _ := testSession(t, DefaultConfig(), acmeContent)
	id := mustEdit(t, s)

	rid, ok := s.ReactivateAt(1, 110, 85)
	if !ok || rid != id {
		t.Fatalf("ReactivateAt = %q, %v, want %q", rid, ok, id)
	}
	if recs := s.Records(); recs[0].State != editstate.Editing {
		t.Errorf("reactivated record state = %v", recs[0].State)
	}
	s.Type("Vandelay")
	s.FinishActive()

	if _, ok := s.ReactivateAt(1, 400, 400); ok {
		t.Error("ReactivateAt off every record reported a hit")
	}

	s.DeleteEdit(id)
	if len(s.Records()) != 0 {
		t.Error("DeleteEdit left the record behind")
	}
	s.DeleteEdit("missing") // no-op
}

func TestExportFailureKeepsEdits(t *testing.T) {
	w := &opWriter{openErr: errors.New("disk full")}
	cfg := DefaultConfig()
	cfg.Writer = w
	s, _ := testSession(t, cfg, acmeContent)
	mustEdit(t, s)

	if _, err := s.Export(context.Background()); err == nil {
		t.Fatal("export succeeded through a failing writer")
	}
	recs := s.Records()
	if len(recs) != 1 || recs[0].NewText != "Globex Inc" || recs[0].State != editstate.Committed {
		t.Errorf("edit state disturbed by failed export: %+v", recs)
	}
}

func TestRasterizerReceivesViewParams(t *testing.T) {
	r := &fakeRaster{}
	cfg := DefaultConfig()
	cfg.Scale = 1.5
	cfg.Rotation = 90
	cfg.Rasterizer = r
	s, _ := testSession(t, cfg, acmeContent)

	view, err := s.RenderPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if view.Image == nil {
		t.Error("view carries no image despite a rasterizer")
	}
	if r.page != 1 || r.scale != 1.5 || r.rotation != 90 {
		t.Errorf("rasterizer saw page=%d scale=%v rotation=%v", r.page, r.scale, r.rotation)
	}

	r.err = errors.New("glitch")
	if _, err := s.RenderPage(context.Background(), 1); err == nil || IsBenign(err) {
		t.Errorf("rasterizer failure surfaced as %v", err)
	}
}

func TestOperationsWithoutDocument(t *testing.T) {
	s := NewSession(DefaultConfig())
	if _, err := s.RenderPage(context.Background(), 1); !errors.Is(err, ErrNoDocument) {
		t.Errorf("RenderPage error = %v, want ErrNoDocument", err)
	}
	if _, err := s.Export(context.Background()); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Export error = %v, want ErrNoDocument", err)
	}
}

func TestRenderPageOutOfRange(t *testing.T) {
	s, _ := testSession(t, DefaultConfig(), acmeContent)
	_, err := s.RenderPage(context.Background(), 2)
	if err == nil || IsBenign(err) {
		t.Errorf("page 2 of a one-page document rendered: %v", err)
	}
}
