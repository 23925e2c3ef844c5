// Package pdfdoc loads PDF documents from ordered fallback sources and
// extracts positioned text runs from their page content streams.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/WyRainBow/overtype/pkg/textrun"
)

var (
	// ErrBadSignature reports bytes that are not a PDF at all. It is
	// terminal: no retry and no fallback source can repair it.
	ErrBadSignature = errors.New("not a PDF: missing %PDF- signature")

	// ErrMalformed wraps structural parse failures. Like ErrBadSignature
	// it is terminal, since every source serves the same bytes.
	ErrMalformed = errors.New("malformed document")

	// ErrDestroyed reports use of a document after Destroy.
	ErrDestroyed = errors.New("document destroyed")
)

// Source produces one attempt at the raw document bytes. Sources are tried
// in order, so the primary location comes first and mirrors follow.
type Source func(ctx context.Context) (io.ReadCloser, error)

// FromBytes returns a Source serving an in-memory document.
func FromBytes(data []byte) Source {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

// FromFile returns a Source reading the document from disk.
func FromFile(path string) Source {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// Config controls document loading.
type Config struct {
	// MaxRetries is the number of extra attempts per source after the
	// first one fails with a transient error.
	MaxRetries int
	// RetryDelay is the base backoff; attempt n waits n times this.
	RetryDelay time.Duration
	// ChunkSize is the read size while draining a source.
	ChunkSize int
	// Logger receives retry and fallback notices. Defaults to io.Discard.
	Logger io.Writer
}

// DefaultConfig returns the stock loading configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 250 * time.Millisecond,
		ChunkSize:  64 << 10,
	}
}

// Load fetches and parses a document, walking the sources in order until
// one succeeds. Transient fetch errors are retried per source with linear
// backoff; signature and parse errors abort the whole load, because every
// source serves the same document.
func Load(ctx context.Context, cfg Config, sources ...Source) (*Document, error) {
	if len(sources) == 0 {
		return nil, errors.New("no document sources")
	}
	if cfg.Logger == nil {
		cfg.Logger = io.Discard
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	var lastErr error
	for i, src := range sources {
		doc, err := loadOne(ctx, cfg, src)
		if err == nil {
			return doc, nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrBadSignature) || errors.Is(err, ErrMalformed) {
			return nil, err
		}
		lastErr = err
		if i < len(sources)-1 {
			fmt.Fprintf(cfg.Logger, "document source %d of %d failed, trying next: %v\n", i+1, len(sources), err)
		}
	}
	return nil, lastErr
}

// loadOne runs the retry loop for a single source.
func loadOne(ctx context.Context, cfg Config, src Source) (*Document, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * cfg.RetryDelay
			fmt.Fprintf(cfg.Logger, "retrying document load in %v (attempt %d of %d): %v\n",
				delay, attempt+1, cfg.MaxRetries+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		data, err := fetch(ctx, cfg, src)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		return parse(data)
	}
	return nil, fmt.Errorf("document load failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// fetch drains a source in chunks, checking for cancellation between reads
// so a slow source cannot stall shutdown.
func fetch(ctx context.Context, cfg Config, src Source) ([]byte, error) {
	rc, err := src(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	chunk := make([]byte, cfg.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := rc.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// parse validates the signature and builds the cross-reference view.
func parse(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, ErrBadSignature
	}
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	dims, err := pctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Document{data: data, pctx: pctx, dims: dims}, nil
}

// Document is a parsed PDF. Methods are safe for concurrent use; the
// underlying parser context is guarded by a single mutex.
type Document struct {
	mu   sync.Mutex
	data []byte
	pctx *model.Context
	dims []types.Dim
}

// PageCount reports the number of pages, zero after Destroy.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pctx == nil {
		return 0
	}
	return d.pctx.PageCount
}

// PageSize returns the page's media box dimensions in document units.
// Pages are numbered from 1.
func (d *Document) PageSize(page int) (w, h float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pctx == nil {
		return 0, 0, ErrDestroyed
	}
	if page < 1 || page > len(d.dims) {
		return 0, 0, fmt.Errorf("page %d out of range [1, %d]", page, len(d.dims))
	}
	dim := d.dims[page-1]
	return dim.Width, dim.Height, nil
}

// Bytes returns the original document bytes the export path clones from.
func (d *Document) Bytes() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data == nil {
		return nil, ErrDestroyed
	}
	return d.data, nil
}

// Destroy releases the parsed document. Further calls on the document
// return ErrDestroyed.
func (d *Document) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = nil
	d.pctx = nil
	d.dims = nil
}

// PageRuns extracts the positioned text runs of a page.
func (d *Document) PageRuns(ctx context.Context, page int) ([]textrun.TextRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pctx == nil {
		return nil, ErrDestroyed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > len(d.dims) {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, len(d.dims))
	}
	r, err := pdfcpu.ExtractPageContent(d.pctx, page)
	if err != nil {
		return nil, fmt.Errorf("extracting page %d content: %w", page, err)
	}
	if r == nil {
		return nil, nil
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading page %d content: %w", page, err)
	}
	return runsFromContent(content, d.pageFonts(page)), nil
}

// HasText reports whether a page carries any non-blank text runs.
func (d *Document) HasText(ctx context.Context, page int) bool {
	runs, err := d.PageRuns(ctx, page)
	if err != nil {
		return false
	}
	for _, r := range runs {
		if strings.TrimSpace(r.Text) != "" {
			return true
		}
	}
	return false
}

// pageFonts maps font resource names to base font names for one page.
// Resolution is best effort; a page without font resources yields nil.
func (d *Document) pageFonts(page int) map[string]string {
	pageDict, _, _, err := d.pctx.PageDict(page, false)
	if err != nil || pageDict == nil {
		return nil
	}
	obj, ok := pageDict.Find("Resources")
	if !ok {
		return nil
	}
	res, err := d.pctx.DereferenceDict(obj)
	if err != nil || res == nil {
		return nil
	}
	fontObj, ok := res.Find("Font")
	if !ok {
		return nil
	}
	fontDict, err := d.pctx.DereferenceDict(fontObj)
	if err != nil || fontDict == nil {
		return nil
	}
	fonts := make(map[string]string, len(fontDict))
	for name, ref := range fontDict {
		fd, err := d.pctx.DereferenceDict(ref)
		if err != nil || fd == nil {
			continue
		}
		if base := fd.NameEntry("BaseFont"); base != nil {
			fonts[name] = *base
		}
	}
	return fonts
}
