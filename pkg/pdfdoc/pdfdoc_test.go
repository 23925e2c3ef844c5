package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/WyRainBow/overtype/pkg/coords"
)

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

func failingSource(calls *int, err error) Source {
	return func(context.Context) (io.ReadCloser, error) {
		*calls++
		return nil, err
	}
}

func servingSource(calls *int, data []byte) Source {
	return func(context.Context) (io.ReadCloser, error) {
		*calls++
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestLoadAndExtract(t *testing.T) {
	ctx := context.Background()
	data := buildPDF(t, "BT /F1 12 Tf 1 0 0 1 100 700 Tm (Acme Corp) Tj ET")

	doc, err := Load(ctx, DefaultConfig(), FromBytes(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Destroy()

	if n := doc.PageCount(); n != 1 {
		t.Fatalf("PageCount = %d, want 1", n)
	}
	w, h, err := doc.PageSize(1)
	if err != nil {
		t.Fatalf("PageSize: %v", err)
	}
	if w != 612 || h != 792 {
		t.Errorf("PageSize = (%v, %v), want (612, 792)", w, h)
	}

	runs, err := doc.PageRuns(ctx, 1)
	if err != nil {
		t.Fatalf("PageRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Text != "Acme Corp" {
		t.Errorf("text = %q, want %q", runs[0].Text, "Acme Corp")
	}
	if runs[0].FontName != "Helvetica" {
		t.Errorf("font = %q, want Helvetica", runs[0].FontName)
	}
	if diff := cmp.Diff(coords.Matrix{12, 0, 0, 12, 100, 700}, runs[0].Transform, approx); diff != "" {
		t.Errorf("transform mismatch (-want +got):\n%s", diff)
	}

	if !doc.HasText(ctx, 1) {
		t.Error("HasText = false, want true")
	}
}

func TestLoadBadSignatureIsTerminal(t *testing.T) {
	var callsA, callsB int
	good := buildPDF(t, "BT /F1 12 Tf (x) Tj ET")

	_, err := Load(context.Background(), quickConfig(),
		servingSource(&callsA, []byte("<html>not a document</html>")),
		servingSource(&callsB, good))
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
	if callsA != 1 {
		t.Errorf("bad source fetched %d times, want 1", callsA)
	}
	if callsB != 0 {
		t.Errorf("fallback consulted %d times, want 0", callsB)
	}
}

func TestLoadRetriesTransientFailures(t *testing.T) {
	boom := errors.New("connection reset")
	var calls int
	cfg := quickConfig()
	cfg.MaxRetries = 2

	_, err := Load(context.Background(), cfg, failingSource(&calls, boom))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if calls != 3 {
		t.Errorf("source fetched %d times, want 3", calls)
	}
}

func TestLoadRetriesReadFailures(t *testing.T) {
	boom := errors.New("stream truncated")
	var calls int
	src := func(context.Context) (io.ReadCloser, error) {
		calls++
		return io.NopCloser(iotest.ErrReader(boom)), nil
	}
	cfg := quickConfig()
	cfg.MaxRetries = 1

	_, err := Load(context.Background(), cfg, src)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if calls != 2 {
		t.Errorf("source fetched %d times, want 2", calls)
	}
}

func TestLoadFallsBackAcrossSources(t *testing.T) {
	var callsA, callsB int
	good := buildPDF(t, "BT /F1 12 Tf (x) Tj ET")
	cfg := quickConfig()
	cfg.MaxRetries = 1

	doc, err := Load(context.Background(), cfg,
		failingSource(&callsA, errors.New("host unreachable")),
		servingSource(&callsB, good))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Destroy()

	if callsA != 2 {
		t.Errorf("primary fetched %d times, want 2", callsA)
	}
	if callsB != 1 {
		t.Errorf("mirror fetched %d times, want 1", callsB)
	}
}

func TestLoadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, quickConfig(), FromBytes(buildPDF(t, "BT ET")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadNoSources(t *testing.T) {
	if _, err := Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatal("expected error for empty source list")
	}
}

func TestLoadFromFile(t *testing.T) {
	data := buildPDF(t, "BT /F1 12 Tf (x) Tj ET")
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(context.Background(), DefaultConfig(), FromFile(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Destroy()

	if n := doc.PageCount(); n != 1 {
		t.Errorf("PageCount = %d, want 1", n)
	}
	got, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Bytes differs from the source document")
	}
}

func TestDocumentDestroy(t *testing.T) {
	ctx := context.Background()
	doc, err := Load(ctx, DefaultConfig(), FromBytes(buildPDF(t, "BT /F1 12 Tf (x) Tj ET")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	doc.Destroy()
	doc.Destroy() // idempotent

	if n := doc.PageCount(); n != 0 {
		t.Errorf("PageCount after Destroy = %d, want 0", n)
	}
	if _, err := doc.Bytes(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Bytes err = %v, want ErrDestroyed", err)
	}
	if _, _, err := doc.PageSize(1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("PageSize err = %v, want ErrDestroyed", err)
	}
	if _, err := doc.PageRuns(ctx, 1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("PageRuns err = %v, want ErrDestroyed", err)
	}
}

func TestPageRunsOutOfRange(t *testing.T) {
	ctx := context.Background()
	doc, err := Load(ctx, DefaultConfig(), FromBytes(buildPDF(t, "BT ET")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Destroy()

	for _, page := range []int{0, 2, -1} {
		if _, err := doc.PageRuns(ctx, page); err == nil {
			t.Errorf("PageRuns(%d): expected range error", page)
		}
	}
}
